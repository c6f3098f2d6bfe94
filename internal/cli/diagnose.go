package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/pdfmend/internal/control"
	"github.com/vietddude/pdfmend/internal/repair/diagnostics"
)

func newDiagnoseCmd(opts *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "diagnose <file>",
		Short: "Report the health of a document without repairing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read input: %w", err)
			}

			svc := control.NewService(opts.cfg, nil, slog.Default())
			report := svc.Diagnose(cmd.Context(), data)

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			printHealth(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full report as JSON")
	return cmd
}

func printHealth(w io.Writer, r *diagnostics.HealthReport) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "Health:\t%s\n", r.Health)
	_, _ = fmt.Fprintf(tw, "Score:\t%.2f\n", r.Score)
	_, _ = fmt.Fprintf(tw, "Integrity:\t%.2f\n", r.IntegrityScore)
	_, _ = fmt.Fprintf(tw, "Objects:\t%d nodes, %d headers\n", r.Statistics.Nodes, r.Statistics.ObjectHeaders)
	_, _ = fmt.Fprintf(tw, "References:\t%d broken of %d\n", r.Statistics.BrokenReferences, r.Statistics.References)
	_, _ = fmt.Fprintf(tw, "Streams:\t%d corrupted of %d\n", r.Statistics.CorruptedStreams, r.Statistics.Streams)
	_ = tw.Flush()

	if len(r.Findings) > 0 {
		_, _ = fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 0, 3, ' ', tabwriter.Debug)
		_, _ = fmt.Fprintln(tw, "CHECKER\tSTATUS\tMESSAGE")
		for _, f := range r.Findings {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", f.Checker, f.Status, f.Message)
		}
		_ = tw.Flush()
	}

	if len(r.Recommendations) > 0 {
		_, _ = fmt.Fprintln(w, "\nRecommendations:")
		for _, rec := range r.Recommendations {
			_, _ = fmt.Fprintf(w, "  [%s] %s (%s, est. %.0f%%)\n",
				rec.Priority, rec.Description, rec.Action, rec.EstimatedSuccess*100)
		}
	}
}
