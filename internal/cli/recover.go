package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/pdfmend/internal/control"
	"github.com/vietddude/pdfmend/internal/repair/recovery"
)

func newRecoverCmd(opts *options) *cobra.Command {
	var (
		output string
		level  string
		asJSON bool
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "recover <file>",
		Short: "Repair a document and print the recovery report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var lvl *recovery.Level
			if level != "" {
				l, err := recovery.ParseLevel(level)
				if err != nil {
					return err
				}
				lvl = &l
			}

			input := args[0]
			data, err := os.ReadFile(input)
			if err != nil {
				return fmt.Errorf("failed to read input: %w", err)
			}

			ctx := cmd.Context()
			archive, err := opts.openArchive(ctx)
			if err != nil {
				return err
			}
			defer func() {
				_ = archive.Close()
			}()

			svc := control.NewService(opts.cfg, archive.Repo, slog.Default())
			out, err := svc.Recover(ctx, filepath.Base(input), data, lvl)
			if err != nil {
				slog.Warn("Report not archived", "error", err)
			}

			if !dryRun {
				if output == "" {
					output = defaultOutput(input)
				}
				if err := os.WriteFile(output, out.Data, 0o644); err != nil {
					return fmt.Errorf("failed to write output: %w", err)
				}
				slog.Info("Recovered document written", "path", output, "bytes", len(out.Data))
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out.Report)
			}
			printReport(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output path (default <file>.recovered.pdf)")
	cmd.Flags().StringVar(&level, "level", "", "recovery level: conservative, moderate, aggressive, experimental")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full report as JSON")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "do not write the recovered document")
	return cmd
}

func defaultOutput(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + ".recovered.pdf"
}

func printReport(w io.Writer, out *control.Outcome) {
	rep := out.Report
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "ID:\t%s\n", rep.ID)
	_, _ = fmt.Fprintf(tw, "Digest:\t%s\n", out.Digest)
	_, _ = fmt.Fprintf(tw, "Level:\t%s\n", rep.Level)
	_, _ = fmt.Fprintf(tw, "Tier:\t%s\n", rep.Tier)
	_, _ = fmt.Fprintf(tw, "Health:\t%s\n", rep.Health)
	_, _ = fmt.Fprintf(tw, "Success:\t%v\n", rep.Success)
	_, _ = fmt.Fprintf(tw, "Errors:\t%d encountered, %d recovered\n",
		rep.Statistics.ErrorsEncountered, rep.Statistics.ErrorsRecovered)
	_, _ = fmt.Fprintf(tw, "Archived:\t%v\n", out.Archived)
	_ = tw.Flush()

	if len(rep.Actions) > 0 {
		_, _ = fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 0, 3, ' ', tabwriter.Debug)
		_, _ = fmt.Fprintln(tw, "STRATEGY\tACTION\tCHANGED\tFIXES\tDESCRIPTION")
		for _, a := range rep.Actions {
			desc := a.Description
			if a.Error != "" {
				desc = a.Error
			}
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%v\t%d\t%s\n", a.Strategy, a.Type, a.Changed, a.Fixes, desc)
		}
		_ = tw.Flush()
	}

	for _, e := range rep.Errors {
		_, _ = fmt.Fprintf(w, "\n%s\n", e.Error())
	}
}
