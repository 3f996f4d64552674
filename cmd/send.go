package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/phlwatch/digest-cli/internal/delivery"
	"github.com/phlwatch/digest-cli/internal/digest"
	"github.com/phlwatch/digest-cli/internal/model"
	"github.com/phlwatch/digest-cli/internal/store"
)

var (
	sendDryRun    bool
	sendFrequency string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send area-filtered digests to subscribers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		now := time.Now().UTC()

		freq := model.Frequency(sendFrequency)
		if freq != model.FrequencyDaily && freq != model.FrequencyWeekly {
			return eris.Errorf("invalid frequency %q (want daily or weekly)", sendFrequency)
		}

		lookback := 1
		if freq == model.FrequencyWeekly {
			lookback = 7
		}
		since := now.AddDate(0, 0, -lookback)

		client := newProviderClient()
		permits, variances, err := fetchClassified(ctx, client, since)
		if err != nil {
			return err
		}
		permits = digest.FilterMinUnits(permits, cfg.Digest.MinUnits)

		subscribers, err := loadSubscribers(ctx)
		if err != nil {
			return eris.Wrap(err, "load subscribers")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}
		if err := st.CacheSubscribers(ctx, subscribers); err != nil {
			zap.L().Warn("subscriber cache update failed", zap.Error(err))
		}

		var sender delivery.Sender
		if cfg.Buttondown.APIKey != "" {
			sender, err = newButtondown()
			if err != nil {
				return err
			}
		} else if !sendDryRun {
			return eris.New("no buttondown api key configured; use --dry-run to preview")
		}

		dispatcher := delivery.NewDispatcher(sender, sendDryRun)
		sent, err := dispatcher.Dispatch(ctx, subscribers, permits, variances, freq, now)
		if err != nil {
			return eris.Wrap(err, "dispatch digests")
		}

		if !sendDryRun {
			if err := st.LogSend(ctx, store.SendLog{
				Subject:    "Philadelphia Development Daily - " + now.Format("Jan 02, 2006"),
				Area:       "all",
				Frequency:  freq,
				Recipients: sent,
				SentAt:     now,
			}); err != nil {
				zap.L().Warn("send log write failed", zap.Error(err))
			}
		}

		zap.L().Info("send complete",
			zap.Int("recipients", sent),
			zap.String("frequency", string(freq)),
			zap.Bool("dry_run", sendDryRun),
		)
		return nil
	},
}

func init() {
	sendCmd.Flags().BoolVar(&sendDryRun, "dry-run", false, "log sends without delivering")
	sendCmd.Flags().StringVar(&sendFrequency, "frequency", "daily", "subscriber frequency to send (daily or weekly)")
	rootCmd.AddCommand(sendCmd)
}
