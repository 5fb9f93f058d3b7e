package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"retail-settlement/internal/auth"
	settlement "retail-settlement/internal/settlement/domain"
)

const dateLayout = "2006-01-02"

func newAdvanceCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "advance <metering-point-id>...",
		Short: "Settle every closed, unsettled period of the given metering points",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			var failed int
			for _, id := range args {
				summary, err := a.orchestrator.AdvanceMeteringPoint(cmd.Context(), id)
				if err != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", id, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s settled=%d skipped=%d outcome=%s next=%s\n",
					id, summary.Settled, summary.Skipped, summary.Outcome, formatDate(summary.NextPeriodStart))
			}
			if failed > 0 {
				return fmt.Errorf("settlectl: %d of %d metering points failed", failed, len(args))
			}
			return nil
		},
	}
}

func newRunsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "runs <metering-point-id>",
		Short: "List settlement runs of a metering point",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			runs, err := a.store.ListRuns(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tPERIOD\tVERSION\tSTATUS\tTOTAL\tDETAIL")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s..%s\t%d\t%s\t%s\t%s\n",
					run.ID, formatDate(run.PeriodStart), formatDate(run.PeriodEnd),
					run.Version, run.Status, run.Total.StringFixedBank(2), run.ErrorDetail)
			}
			return w.Flush()
		},
	}
}

func newPeriodsCmd() *cobra.Command {
	var (
		anchor    string
		frequency string
		until     string
	)
	cmd := &cobra.Command{
		Use:   "periods",
		Short: "Print the billing periods of a contract anchor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			freq, err := settlement.ParseFrequency(frequency)
			if err != nil {
				return err
			}
			start, err := time.Parse(dateLayout, anchor)
			if err != nil {
				return fmt.Errorf("settlectl: anchor: %w", err)
			}
			end, err := time.Parse(dateLayout, until)
			if err != nil {
				return fmt.Errorf("settlectl: until: %w", err)
			}
			if !end.After(start) {
				return errors.New("settlectl: until must be after anchor")
			}
			for start.Before(end) {
				periodEnd, err := settlement.GetFirstPeriodEnd(start, freq)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", formatDate(start), formatDate(periodEnd))
				start = periodEnd
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&anchor, "anchor", "", "billing anchor date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&frequency, "frequency", string(settlement.FrequencyMonthly), "daily, weekly, monthly or quarterly")
	cmd.Flags().StringVar(&until, "until", "", "stop before this date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("anchor")
	_ = cmd.MarkFlagRequired("until")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		secret  string
		tenant  string
		role    string
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				return errors.New("settlectl: --secret or AUTH_JWT_SECRET is required")
			}
			parsed, ok := auth.NormalizeRole(role)
			if !ok {
				return fmt.Errorf("settlectl: unknown role %q", role)
			}
			token, err := auth.IssueJWT([]byte(secret), tenant, parsed, subject, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&secret, "secret", firstNonEmpty(os.Getenv("AUTH_JWT_SECRET"), os.Getenv("JWT_SECRET")), "HMAC signing secret")
	cmd.Flags().StringVar(&tenant, "tenant", "supplier-default", "tenant id claim")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleViewer), "viewer, operator or admin")
	cmd.Flags().StringVar(&subject, "subject", "settlectl", "subject claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(dateLayout)
}
