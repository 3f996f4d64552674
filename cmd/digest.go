package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/phlwatch/digest-cli/internal/digest"
	"github.com/phlwatch/digest-cli/internal/model"
)

var (
	digestDays     int
	digestMinUnits int
	digestHTML     bool
	digestOut      string
	digestArchive  bool
)

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Generate a digest for the lookback window",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		now := time.Now().UTC()

		days := digestDays
		if days == 0 {
			days = cfg.Digest.LookbackDays
		}
		minUnits := digestMinUnits
		if minUnits == 0 {
			minUnits = cfg.Digest.MinUnits
		}
		since := now.AddDate(0, 0, -days)

		client := newProviderClient()
		permits, variances, err := fetchClassified(ctx, client, since)
		if err != nil {
			return err
		}

		if digestArchive {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Migrate(ctx); err != nil {
				return eris.Wrap(err, "migrate store")
			}

			all := append(append([]model.ClassifiedRecord{}, permits...), variances...)
			archived, err := st.ArchiveRecords(ctx, all)
			if err != nil {
				return eris.Wrap(err, "archive records")
			}
			zap.L().Info("records archived", zap.Int("count", archived))
		}

		in := digest.Input{
			Permits:   digest.FilterMinUnits(permits, minUnits),
			Variances: variances,
			Start:     since,
			End:       now,
			MinUnits:  minUnits,
			AreaName:  "Citywide",
			Warnings:  freshnessWarnings(ctx, client, now),
		}

		body := digest.Markdown(in)
		if digestHTML {
			body = digest.HTML(in)
		}

		if digestOut != "" {
			if err := os.WriteFile(digestOut, []byte(body), 0o644); err != nil {
				return eris.Wrapf(err, "write digest %s", digestOut)
			}
			zap.L().Info("digest written", zap.String("path", digestOut))
			return nil
		}

		fmt.Fprintln(cmd.OutOrStdout(), body)
		return nil
	},
}

func init() {
	digestCmd.Flags().IntVar(&digestDays, "days", 0, "lookback window in days (default from config)")
	digestCmd.Flags().IntVar(&digestMinUnits, "min-units", 0, "minimum unit threshold for permits (default from config)")
	digestCmd.Flags().BoolVar(&digestHTML, "html", false, "emit HTML instead of markdown")
	digestCmd.Flags().StringVar(&digestOut, "out", "", "write digest to file instead of stdout")
	digestCmd.Flags().BoolVar(&digestArchive, "archive", false, "archive classified records to the store")
	rootCmd.AddCommand(digestCmd)
}
