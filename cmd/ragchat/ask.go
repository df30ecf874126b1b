package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/domain/usecases"
	"github.com/0xcro3dile/ragchat-go/internal/infrastructure/logger"
)

func askCMD(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "ask [question]",
		Short: "Chat with the corpus in the terminal",
		Long: "Without arguments ask starts an interactive chat; Ctrl-C cancels the " +
			"answer being generated, or exits at the prompt. With arguments it " +
			"answers the single question and exits.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := g.logger
			if g.cfg.Log.Level == "" {
				// Keep debug output out of the chat unless asked for.
				if quiet, err := logger.New(g.cfg.Log.Mode, "warn"); err == nil {
					log = quiet
				}
			}
			a, err := newApp(ctx, g.cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			m := a.newConversation()
			defer m.Close()
			console := newConsoleSubscriber(cmd.OutOrStdout())
			m.Subscribe(console)

			interrupts := make(chan os.Signal, 1)
			signal.Notify(interrupts, os.Interrupt)
			defer signal.Stop(interrupts)

			if len(args) > 0 {
				return runTurn(ctx, m, console, strings.Join(args, " "), interrupts)
			}
			return repl(ctx, m, console, cmd.InOrStdin(), cmd.OutOrStdout(), interrupts)
		},
	}
}

// runTurn submits query and blocks until the conversation is Idle again.
// An interrupt cancels the turn.
func runTurn(ctx context.Context, m *usecases.ConversationManager, console *consoleSubscriber, query string, interrupts <-chan os.Signal) error {
	select {
	case <-console.Idle():
	default:
	}
	if err := m.Submit(query); err != nil {
		return err
	}
	for {
		select {
		case <-console.Idle():
			return nil
		case <-interrupts:
			m.Cancel()
		case <-ctx.Done():
			m.Cancel()
			return ctx.Err()
		}
	}
}

func repl(ctx context.Context, m *usecases.ConversationManager, console *consoleSubscriber, in io.Reader, out io.Writer, interrupts <-chan os.Signal) error {
	for _, msg := range m.History() {
		fmt.Fprintln(out, msg.Content)
	}
	fmt.Fprintln(out, "Type /history to show the conversation, /quit to exit.")

	done := make(chan struct{})
	defer close(done)
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()

	for {
		fmt.Fprint(out, "> ")
		select {
		case <-ctx.Done():
			return nil
		case <-interrupts:
			fmt.Fprintln(out)
			return nil
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				return nil
			}
			switch line = strings.TrimSpace(line); line {
			case "":
				continue
			case "/quit", "/exit":
				return nil
			case "/history":
				printHistory(out, m.History())
				continue
			}
			err := runTurn(ctx, m, console, line, interrupts)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if err != nil {
				fmt.Fprintln(out, "error:", err)
			}
		}
	}
}

func printHistory(out io.Writer, history []entities.Message) {
	for _, msg := range history {
		fmt.Fprintf(out, "[%s] %s: %s\n", msg.Timestamp.Format("15:04:05"), msg.Role, msg.Content)
	}
}
