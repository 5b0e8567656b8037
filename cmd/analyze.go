package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/thread-annotator/internal/pipeline"
	"github.com/sells-group/thread-annotator/internal/store"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyse every post of a sample against a template",
	Long:  "Reads the sample and template, analyses each template field for every post and writes the ordered analyses to the output file.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyAnalyzeFlags(cmd)
		if err := cfg.Validate("analyze"); err != nil {
			return err
		}

		posts, err := pipeline.LoadSample(cfg.Input.SamplePath)
		if err != nil {
			return err
		}
		tmpl, tmplLabel, err := loadTemplate(ctx)
		if err != nil {
			return err
		}

		var st store.Store
		if noStore, _ := cmd.Flags().GetBool("no-store"); !noStore {
			st, err = initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
		}

		p, err := initPipeline(ctx, st, cfg.Output.Path)
		if err != nil {
			return err
		}

		zap.L().Info("analyze: loaded input",
			zap.String("sample", cfg.Input.SamplePath),
			zap.String("template", tmplLabel),
			zap.Int("posts", len(posts)),
			zap.Int("fields", tmpl.Len()),
		)

		res, err := p.Run(ctx, pipeline.Input{
			SamplePath:   cfg.Input.SamplePath,
			TemplatePath: tmplLabel,
			Posts:        posts,
			Template:     tmpl,
		})
		if err != nil {
			return eris.Wrap(err, "analyze")
		}

		formatSummary(os.Stderr, res)
		return nil
	},
}

// applyAnalyzeFlags copies explicitly set flags over the loaded config.
func applyAnalyzeFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("sample") {
		cfg.Input.SamplePath, _ = flags.GetString("sample")
	}
	if flags.Changed("template") {
		cfg.Input.TemplatePath, _ = flags.GetString("template")
		cfg.Input.TemplateSource = "file"
	}
	if flags.Changed("output") {
		cfg.Output.Path, _ = flags.GetString("output")
	}
	if flags.Changed("format") {
		cfg.Output.Format, _ = flags.GetString("format")
	}
	if flags.Changed("provider") {
		cfg.Generation.Provider, _ = flags.GetString("provider")
	}
	if flags.Changed("model") {
		cfg.Generation.Model, _ = flags.GetString("model")
	}
	if flags.Changed("workers") {
		cfg.Pipeline.PostWorkers, _ = flags.GetInt("workers")
	}
}

// formatSummary writes the run counters to w.
func formatSummary(out io.Writer, res *pipeline.Result) {
	s := res.Summary
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", res.RunID)
	_, _ = fmt.Fprintf(w, "Posts:\t%d\n", s.Posts)
	_, _ = fmt.Fprintf(w, "Fields:\t%d\n", s.Fields)
	_, _ = fmt.Fprintf(w, "  Accepted:\t%d\n", s.Accepted)
	_, _ = fmt.Fprintf(w, "  Cached:\t%d\n", s.Cached)
	_, _ = fmt.Fprintf(w, "  Exhausted:\t%d\n", s.Exhausted)
	_, _ = fmt.Fprintf(w, "Generation calls:\t%d\n", s.Attempts)
	if s.PartialDocs > 0 {
		_, _ = fmt.Fprintf(w, "Chunked posts:\t%d\n", s.PartialDocs)
	}
	if s.OrphanComments > 0 {
		_, _ = fmt.Fprintf(w, "Orphan comments:\t%d\n", s.OrphanComments)
	}
	if s.OutputPath != "" {
		_, _ = fmt.Fprintf(w, "Output:\t%s\n", s.OutputPath)
	}
	_ = w.Flush()
}

func init() {
	f := analyzeCmd.Flags()
	f.String("sample", "", "sample file (default from config)")
	f.String("template", "", "template file, JSON or YAML (default from config)")
	f.StringP("output", "o", "", "output file (default from config)")
	f.String("format", "", "output format: json, yaml or xlsx")
	f.String("provider", "", "generation provider: ollama, openai, anthropic or gemini")
	f.String("model", "", "model id")
	f.Int("workers", 0, "posts analysed concurrently")
	f.Bool("no-store", false, "do not record the run in the store")
	rootCmd.AddCommand(analyzeCmd)
}
