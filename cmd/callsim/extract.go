package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/wolfman30/clinic-voice-agent/cmd/mainconfig"
	"github.com/wolfman30/clinic-voice-agent/internal/app/bootstrap"
	appconfig "github.com/wolfman30/clinic-voice-agent/internal/config"
	"github.com/wolfman30/clinic-voice-agent/internal/dates"
	"github.com/wolfman30/clinic-voice-agent/internal/dialogue"
)

// newExtractCmd runs the configured extractor chain on one utterance, which
// is the quickest way to check model credentials and prompt behavior.
func newExtractCmd(root *rootOptions) *cobra.Command {
	var (
		provider string
		awaiting string
		ref      string
	)
	cmd := &cobra.Command{
		Use:   "extract <utterance>",
		Short: "Run entity extraction on one utterance and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			cfg := appconfig.Load()
			if provider != "" {
				cfg.ExtractorProvider = strings.ToLower(provider)
			}
			logger := root.logger(cmd)

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			var awsCfg aws.Config
			if bootstrap.NeedsAWS(cfg) {
				var err error
				if awsCfg, err = mainconfig.LoadAWSConfig(ctx, cfg); err != nil {
					return err
				}
			}
			extractor, closeExtractor, err := bootstrap.BuildExtractor(ctx, cfg, awsCfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = closeExtractor() }()

			today := dates.StartOfDay(time.Now())
			if ref != "" {
				d, ok := dates.ParseISO(ref, time.Local)
				if !ok {
					return fmt.Errorf("invalid --ref %q: want YYYY-MM-DD", ref)
				}
				today = d
			}
			var slot dialogue.SlotName
			if awaiting != "" {
				s, ok := dialogue.ParseSlotName(awaiting)
				if !ok {
					return fmt.Errorf("invalid --awaiting %q", awaiting)
				}
				slot = s
			}

			ext, err := extractor.Extract(ctx, dialogue.NewExtractionRequest(strings.Join(args, " "), today, slot))
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(ext)
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "extractor provider override (keyword, bedrock, gemini, bedrock+gemini)")
	cmd.Flags().StringVar(&awaiting, "awaiting", "", "slot the agent just asked for, e.g. patient_name")
	cmd.Flags().StringVar(&ref, "ref", "", "reference day (YYYY-MM-DD), defaults to today")
	return cmd
}
