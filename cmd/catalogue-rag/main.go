package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bububa/catalogue-rag/agents/rag"
	"github.com/bububa/catalogue-rag/components/document"
	"github.com/bububa/catalogue-rag/components/embedder"
	"github.com/bububa/catalogue-rag/internal/app"
	"github.com/bububa/catalogue-rag/internal/config"
)

type globals struct {
	configPath string
	envFiles   []string
	format     string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := new(globals)
	rootCmd := &cobra.Command{
		Use:          "catalogue-rag",
		Short:        "Answer questions grounded in a course catalogue",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&g.configPath, "config", "", "Config file path")
	rootCmd.PersistentFlags().StringSliceVar(&g.envFiles, "env-file", nil, "dotenv files loaded before the environment")
	rootCmd.PersistentFlags().StringVar(&g.format, "format", "text", "Output format: text, json or yaml")

	rootCmd.AddCommand(
		newChunkCmd(g),
		newIngestCmd(g),
		newPromptCmd(g),
		newAskCmd(g),
	)
	return rootCmd
}

func (g *globals) open(ctx context.Context, errOut io.Writer) (*app.App, error) {
	cfg, err := config.Load(g.configPath, g.envFiles...)
	if err != nil {
		return nil, err
	}
	logger := app.NewLogger(cfg.Log, errOut)
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}
	return app.New(ctx, cfg, logger)
}

func (g *globals) print(w io.Writer, v any, text func(io.Writer) error) error {
	switch g.format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(v)
	case "text", "":
		return text(w)
	}
	return fmt.Errorf("unknown output format %q", g.format)
}

func loadSources(ctx context.Context, a *app.App, uris []string) ([]embedder.SourceRecord, error) {
	var records []embedder.SourceRecord
	for _, uri := range uris {
		src, err := a.Source(uri)
		if err != nil {
			return nil, err
		}
		recs, err := document.Load(ctx, src)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", uri, err)
		}
		records = append(records, recs...)
	}
	return records, nil
}

func ingest(ctx context.Context, a *app.App, uris []string) (*rag.IngestReport, error) {
	records, err := loadSources(ctx, a, uris)
	if err != nil {
		return nil, err
	}
	return a.RAG.Ingest(ctx, records)
}

func newChunkCmd(g *globals) *cobra.Command {
	var sources []string
	cmd := &cobra.Command{
		Use:   "chunk",
		Short: "Split catalogue sources into embedding sized chunks",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := g.open(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			records, err := loadSources(ctx, a, sources)
			if err != nil {
				return err
			}
			chunks, err := a.RAG.Chunk(records)
			if err != nil {
				return err
			}
			return g.print(cmd.OutOrStdout(), chunks, func(w io.Writer) error {
				for _, c := range chunks {
					fmt.Fprintf(w, "%s\t%d\t%s\n", c.ID, c.TokenSize, c.Text)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&sources, "source", nil, "Catalogue file, s3:// or http(s):// uri")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func newIngestCmd(g *globals) *cobra.Command {
	var sources []string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Chunk, embed and index catalogue sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := g.open(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			report, err := ingest(ctx, a, sources)
			if err != nil {
				return err
			}
			return g.print(cmd.OutOrStdout(), report, func(w io.Writer) error {
				fmt.Fprintf(w, "namespace: %s\n", report.Namespace)
				fmt.Fprintf(w, "records:   %d\n", report.Records)
				fmt.Fprintf(w, "chunks:    %d (%d oversized)\n", report.Chunks, report.Oversized)
				fmt.Fprintf(w, "upserted:  %d in %d batches\n", report.Upserted, report.Batches)
				fmt.Fprintf(w, "tokens:    %d\n", report.Usage.Total())
				fmt.Fprintf(w, "elapsed:   %s\n", report.Elapsed)
				for _, s := range report.Skipped {
					fmt.Fprintf(w, "skipped batch %d (%d chunks): %s\n", s.Batch, len(s.IDs), s.Error)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&sources, "source", nil, "Catalogue file, s3:// or http(s):// uri")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func newPromptCmd(g *globals) *cobra.Command {
	var sources []string
	cmd := &cobra.Command{
		Use:   "prompt <question>",
		Short: "Print the context message assembled for a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := g.open(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			if len(sources) > 0 {
				if _, err := ingest(ctx, a, sources); err != nil {
					return err
				}
			}
			assembled, err := a.RAG.Prompt(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return g.print(cmd.OutOrStdout(), assembled, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, assembled.Message)
				return err
			})
		},
	}
	cmd.Flags().StringSliceVar(&sources, "source", nil, "Ingest these sources first")
	return cmd
}

func newAskCmd(g *globals) *cobra.Command {
	var (
		sources []string
		stream  bool
	)
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question, or read questions from stdin when none is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := g.open(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			if len(sources) > 0 {
				if _, err := ingest(ctx, a, sources); err != nil {
					return err
				}
			}
			sess := a.Sessions.Create()
			out := cmd.OutOrStdout()
			answer := func(q string) error {
				if stream && g.format == "text" {
					var sb strings.Builder
					for part, err := range a.RAG.Stream(ctx, q, sess.History()) {
						if err != nil {
							return err
						}
						sb.WriteString(part)
						fmt.Fprint(out, part)
					}
					fmt.Fprintln(out)
					sess.Exchange(q, sb.String())
					return nil
				}
				ans, err := a.RAG.Ask(ctx, q, sess.History())
				if err != nil {
					return err
				}
				sess.Exchange(q, ans.Text)
				return g.print(out, ans, func(w io.Writer) error {
					_, err := fmt.Fprintln(w, ans.Text)
					return err
				})
			}
			if len(args) > 0 {
				return answer(strings.Join(args, " "))
			}
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				q := strings.TrimSpace(scanner.Text())
				if q == "" {
					continue
				}
				if err := answer(q); err != nil {
					return err
				}
			}
			return scanner.Err()
		},
	}
	cmd.Flags().StringSliceVar(&sources, "source", nil, "Ingest these sources first")
	cmd.Flags().BoolVar(&stream, "stream", false, "Stream the answer as it is generated")
	return cmd
}
