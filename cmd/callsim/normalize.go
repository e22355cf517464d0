package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wolfman30/clinic-voice-agent/internal/dates"
)

func newNormalizeCmd() *cobra.Command {
	var (
		ref string
		tz  string
	)
	cmd := &cobra.Command{
		Use:   "normalize <expression>",
		Short: "Resolve a spoken day expression to YYYY-MM-DD",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc := time.Local
			if tz != "" {
				l, err := time.LoadLocation(tz)
				if err != nil {
					return fmt.Errorf("invalid --tz: %w", err)
				}
				loc = l
			}
			now := time.Now().In(loc)
			if ref != "" {
				d, ok := dates.ParseISO(ref, loc)
				if !ok {
					return fmt.Errorf("invalid --ref %q: want YYYY-MM-DD", ref)
				}
				now = d
			}

			text := strings.Join(args, " ")
			iso := dates.NormalizeISO(text, now)
			if iso == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "no date found in %q\n", text)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), iso)
			return nil
		},
	}
	cmd.Flags().StringVar(&ref, "ref", "", "reference day (YYYY-MM-DD), defaults to today")
	cmd.Flags().StringVar(&tz, "tz", "", "IANA time zone for the reference day")
	return cmd
}
