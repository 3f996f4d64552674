package main

import (
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/phlwatch/digest-cli/internal/provider"
)

var geodataCmd = &cobra.Command{
	Use:   "geodata",
	Short: "Manage boundary datasets",
}

var geodataDownloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download neighborhood and council district boundaries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client := &http.Client{Timeout: 2 * time.Minute}

		downloads := []struct {
			url  string
			file string
		}{
			{cfg.Geodata.NeighborhoodsURL, cfg.Geodata.NeighborhoodsFile},
			{cfg.Geodata.DistrictsURL, cfg.Geodata.DistrictsFile},
		}
		for _, d := range downloads {
			dest := filepath.Join(cfg.Geodata.Dir, d.file)
			if err := provider.DownloadBoundaries(ctx, client, d.url, dest); err != nil {
				return err
			}
		}

		zap.L().Info("geodata ready", zap.String("dir", cfg.Geodata.Dir))
		return nil
	},
}

func init() {
	geodataCmd.AddCommand(geodataDownloadCmd)
	rootCmd.AddCommand(geodataCmd)
}
