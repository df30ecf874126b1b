// Command ragchat is a retrieval-augmented chat assistant: an HTTP API, an
// interactive terminal chat and corpus tooling.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/0xcro3dile/ragchat-go/internal/infrastructure/config"
	"github.com/0xcro3dile/ragchat-go/internal/infrastructure/logger"
)

type globals struct {
	cfgPath string
	cfg     *config.Config
	logger  *zap.Logger
}

func main() {
	g := &globals{}

	root := &cobra.Command{
		Use:           "ragchat",
		Short:         "Retrieval-augmented chat over a document corpus",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(g.cfgPath)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
			if err != nil {
				return err
			}
			g.cfg, g.logger = cfg, log
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if g.logger != nil {
				_ = g.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&g.cfgPath, "config", "c", "", "config file (default ./ragchat.yaml or ./config/ragchat.yaml)")

	root.AddCommand(serveCMD(g), askCMD(g), corpusCMD(g))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
