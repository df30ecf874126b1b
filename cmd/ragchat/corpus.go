package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/0xcro3dile/ragchat-go/internal/adapters/docstore"
	"github.com/0xcro3dile/ragchat-go/internal/adapters/loader"
	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
	"github.com/0xcro3dile/ragchat-go/internal/infrastructure/config"
)

func corpusCMD(g *globals) *cobra.Command {
	corpus := &cobra.Command{
		Use:   "corpus",
		Short: "Inspect and import the document corpus",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the documents of the configured corpus",
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := loadDocuments(cmd, g)
			if err != nil {
				return err
			}
			return printDocuments(cmd.OutOrStdout(), docs)
		},
	}

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print one document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := loadDocuments(cmd, g)
			if err != nil {
				return err
			}
			store, err := docstore.NewMemoryStore(docs)
			if err != nil {
				return err
			}
			doc, err := store.ByID(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:       %s\nTitle:    %s\nCategory: %s\n\n%s\n", doc.ID, doc.Title, doc.Category, doc.Content)
			return nil
		},
	}

	var dbPath string
	importCmd := &cobra.Command{
		Use:   "import <file|dir>",
		Short: "Replace the SQLite corpus with documents from a file or directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var src ports.CorpusSource
			info, err := os.Stat(args[0])
			if err != nil {
				return err
			}
			if info.IsDir() {
				src = loader.NewDirSource(args[0])
			} else {
				src = loader.NewFileSource(args[0])
			}
			docs, err := src.Load(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := docstore.NewMemoryStore(docs); err != nil {
				return err
			}

			if dbPath == "" && g.cfg.Corpus.Source == config.SourceSQLite {
				dbPath = g.cfg.Corpus.Path
			}
			db, err := docstore.NewSQLiteSource(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Import(cmd.Context(), docs); err != nil {
				return err
			}
			g.logger.Info("corpus imported", zap.Int("documents", len(docs)), zap.String("db", db.Path()))
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d documents into %s\n", len(docs), db.Path())
			return nil
		},
	}
	importCmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (defaults to corpus.path or ./data/corpus.db)")

	corpus.AddCommand(list, show, importCmd)
	return corpus
}

func loadDocuments(cmd *cobra.Command, g *globals) ([]entities.Document, error) {
	src, closeSource, err := openSource(cmd.Context(), g.cfg.Corpus)
	if err != nil {
		return nil, err
	}
	if closeSource != nil {
		defer closeSource()
	}
	return src.Load(cmd.Context())
}

func printDocuments(out io.Writer, docs []entities.Document) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCATEGORY\tTITLE\tCHARS")
	for _, d := range docs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", d.ID, d.Category, strings.TrimSpace(d.Title), len([]rune(d.Content)))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d documents\n", len(docs))
	return nil
}
