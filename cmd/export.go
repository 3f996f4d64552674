package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/phlwatch/digest-cli/internal/export"
)

var (
	exportDays int
	exportOut  string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export classified records to an XLSX workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		now := time.Now().UTC()

		days := exportDays
		if days == 0 {
			days = cfg.Digest.LookbackDays
		}
		since := now.AddDate(0, 0, -days)

		client := newProviderClient()
		permits, variances, err := fetchClassified(ctx, client, since)
		if err != nil {
			return err
		}

		if err := export.WriteXLSX(exportOut, permits, variances); err != nil {
			return err
		}
		zap.L().Info("export complete",
			zap.String("path", exportOut),
			zap.Int("permits", len(permits)),
			zap.Int("variances", len(variances)),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().IntVar(&exportDays, "days", 0, "lookback window in days (default from config)")
	exportCmd.Flags().StringVar(&exportOut, "out", "records.xlsx", "output workbook path")
	rootCmd.AddCommand(exportCmd)
}
