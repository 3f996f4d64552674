package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/phlwatch/digest-cli/internal/match"
)

var subscribersCmd = &cobra.Command{
	Use:   "subscribers",
	Short: "List subscribers and their area preferences",
	RunE: func(cmd *cobra.Command, args []string) error {
		subscribers, err := loadSubscribers(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, s := range subscribers {
			status := "active"
			if !s.Active {
				status = "inactive"
			}
			areas := "citywide"
			if !match.Citywide(s.Preference) {
				var parts []string
				if len(s.Preference.Neighborhoods) > 0 {
					parts = append(parts, "neighborhoods: "+strings.Join(s.Preference.Neighborhoods, ", "))
				}
				if len(s.Preference.Districts) > 0 {
					parts = append(parts, "districts: "+strings.Join(s.Preference.Districts, ", "))
				}
				areas = strings.Join(parts, "; ")
			}
			fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", s.Email, s.Preference.Frequency, status, areas)
		}
		fmt.Fprintf(out, "\n%d subscribers\n", len(subscribers))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(subscribersCmd)
}
