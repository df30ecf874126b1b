package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/0xcro3dile/ragchat-go/internal/adapters/filewatcher"
	"github.com/0xcro3dile/ragchat-go/internal/domain/usecases"
	httpserver "github.com/0xcro3dile/ragchat-go/internal/infrastructure/http"
)

func serveCMD(g *globals) *cobra.Command {
	var addr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				g.cfg.Server.Address = addr
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runServe(ctx, g)
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.address)")
	return serve
}

func runServe(ctx context.Context, g *globals) error {
	a, err := newApp(ctx, g.cfg, g.logger)
	if err != nil {
		return err
	}
	defer a.Close()

	sessions := usecases.NewSessions(a.newConversation)
	defer sessions.CloseAll()

	opts := httpserver.Options{
		Addr:            g.cfg.Server.Address,
		ShutdownTimeout: g.cfg.Server.ShutdownTimeout,
		AllowedOrigins:  g.cfg.Server.AllowedOrigins,
		Sessions:        sessions,
		Query:           usecases.NewQueryUseCase(a.ingest.Current, a.assembler, a.generator),
		Corpus:          a.ingest.Current,
		Logger:          g.logger,
	}
	if a.metrics != nil {
		opts.Observer = a.metrics
		opts.MetricsHandler = a.metrics.Handler()
	}
	server := httpserver.NewServer(opts)

	var watcher *filewatcher.FSNotifyWatcher
	if g.cfg.Corpus.Watch {
		watcher, err = filewatcher.NewFSNotifyWatcher(filewatcher.DefaultExtensions, g.logger)
		if err != nil {
			return err
		}
	}

	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return server.Start(egctx)
	})
	if watcher != nil {
		eg.Go(func() error {
			g.logger.Info("watching corpus for changes", zap.String("path", g.cfg.Corpus.Path))
			return a.ingest.Watch(egctx, watcher, g.cfg.Corpus.Path, g.cfg.Corpus.WatchDebounce)
		})
	}

	if err := eg.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
