package cli

import (
	"fmt"
	"log/slog"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/pdfmend/internal/control"
)

func newStatusCmd(opts *options) *cobra.Command {
	var (
		digest string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show archived report counts, or the history of one input digest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			archive, err := opts.openArchive(ctx)
			if err != nil {
				return err
			}
			defer func() {
				_ = archive.Close()
			}()
			if archive.Repo == nil {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Archive disabled (backend %q)\n", opts.cfg.Archive.Backend)
				return nil
			}

			svc := control.NewService(opts.cfg, archive.Repo, slog.Default())
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', tabwriter.Debug)

			if digest != "" {
				recs, err := svc.History(ctx, digest, limit)
				if err != nil {
					return fmt.Errorf("failed to list reports: %w", err)
				}
				_, _ = fmt.Fprintln(w, "ID\tCREATED\tLEVEL\tTIER\tHEALTH\tERRORS")
				for _, r := range recs {
					_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d/%d\n",
						r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Level, r.Tier, r.Health,
						r.ErrorsRecovered, r.ErrorsEncountered)
				}
				return w.Flush()
			}

			counts, err := svc.Counts(ctx)
			if err != nil {
				return fmt.Errorf("failed to count reports: %w", err)
			}
			tiers := make([]string, 0, len(counts))
			for tier := range counts {
				tiers = append(tiers, tier)
			}
			sort.Strings(tiers)

			_, _ = fmt.Fprintln(w, "TIER\tREPORTS")
			for _, tier := range tiers {
				_, _ = fmt.Fprintf(w, "%s\t%d\n", tier, counts[tier])
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&digest, "digest", "", "list reports for this SHA-256 input digest")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum reports to list with --digest")
	return cmd
}
