package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/shipwatch/internal/simulate"
)

var (
	generateAt  string
	generateOut string

	generateCmd = &cobra.Command{
		Use:   "generate",
		Short: "Print the generated scenarios without contacting a service",
		Long: `generate writes the fleet a run with the same --seed and --shipments would
submit, as JSON. Use --at to pin the reference time and get byte-identical output.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if generateAt != "" {
				t, err := time.Parse(time.RFC3339, generateAt)
				if err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
				now = t
			}
			scenarios, err := simulate.NewGenerator(cfg.Seed, now).Generate(cfg.Shipments)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if generateOut != "" {
				f, err := os.Create(generateOut)
				if err != nil {
					return fmt.Errorf("failed to create file: %w", err)
				}
				defer f.Close()
				out = f
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(scenarios)
		},
	}
)

func init() {
	generateCmd.Flags().StringVar(&generateAt, "at", "", "Reference time in RFC 3339, defaults to now")
	generateCmd.Flags().StringVarP(&generateOut, "output", "o", "", "Write to this file instead of stdout")
}
