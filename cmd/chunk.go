package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/thread-annotator/internal/pipeline"
)

var chunkCmd = &cobra.Command{
	Use:   "chunk",
	Short: "Preview comment trees and chunking of a sample",
	RunE: func(cmd *cobra.Command, _ []string) error {
		flags := cmd.Flags()
		if flags.Changed("sample") {
			cfg.Input.SamplePath, _ = flags.GetString("sample")
		}
		if flags.Changed("max-bytes") {
			cfg.Pipeline.MaxChunkBytes, _ = flags.GetInt("max-bytes")
		}
		if err := cfg.Validate("chunk"); err != nil {
			return err
		}

		posts, err := pipeline.LoadSample(cfg.Input.SamplePath)
		if err != nil {
			return err
		}
		previews, err := pipeline.Preview(posts, cfg.Pipeline.MaxChunkBytes)
		if err != nil {
			return err
		}

		if asJSON, _ := flags.GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(previews)
		}
		formatPreviews(os.Stdout, previews)
		return nil
	},
}

// formatPreviews writes one line per chunk to w.
func formatPreviews(out io.Writer, previews []pipeline.PostPreview) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "POST\tCHUNK\tPARTIAL\tCOMMENTS\tBYTES\tORPHANS\tDUPLICATES\tDEPTH")
	_, _ = fmt.Fprintln(w, "----\t-----\t-------\t--------\t-----\t-------\t----------\t-----")
	for _, pv := range previews {
		for _, c := range pv.Chunks {
			_, _ = fmt.Fprintf(w, "%s\t%d\t%t\t%d\t%d\t%d\t%d\t%d\n",
				pv.PostID, c.Index, c.Partial, c.Comments, c.Bytes,
				pv.Stats.Orphans, pv.Stats.Duplicates, pv.Stats.MaxDepth,
			)
		}
	}
	_ = w.Flush()
}

func init() {
	chunkCmd.Flags().String("sample", "", "sample file (default from config)")
	chunkCmd.Flags().Int("max-bytes", 0, "chunk budget in bytes (default from config)")
	chunkCmd.Flags().Bool("json", false, "print the preview as JSON")
	rootCmd.AddCommand(chunkCmd)
}
