package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show upstream data freshness and recent sends",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		now := time.Now().UTC()
		out := cmd.OutOrStdout()

		client := newProviderClient()
		lastPermit, lastAppeal, err := client.Freshness(ctx)
		if err != nil {
			fmt.Fprintf(out, "upstream: unreachable (%v)\n", err)
		} else {
			fmt.Fprintf(out, "latest permit:  %s (%d days ago)\n", formatDay(lastPermit), daysAgo(now, lastPermit))
			fmt.Fprintf(out, "latest appeal:  %s (%d days ago)\n", formatDay(lastAppeal), daysAgo(now, lastAppeal))
		}
		for _, w := range freshnessWarnings(ctx, client, now) {
			fmt.Fprintln(out, w)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		sends, err := st.ListSends(ctx, now.AddDate(0, 0, -7))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\nsends in the last 7 days: %d\n", len(sends))
		for _, s := range sends {
			fmt.Fprintf(out, "  %s  %-8s  %d recipients  %s\n",
				s.SentAt.Format("2006-01-02 15:04"), s.Frequency, s.Recipients, s.Subject)
		}
		return nil
	},
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Format("2006-01-02")
}

func daysAgo(now, t time.Time) int {
	if t.IsZero() {
		return 0
	}
	return int(now.Sub(t).Hours() / 24)
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
