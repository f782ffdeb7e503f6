package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jaineelmodi11/KingsHacks/internal/personalization"
)

func extractCmd() *cobra.Command {
	var (
		factsPath string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Print the profile extracted from a fact file",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := loadFacts(factsPath)
			if err != nil {
				return err
			}
			view := personalization.Extract(records).View()

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(view)
			}
			// Round-trip through JSON so the YAML keys match the API.
			data, err := json.Marshal(view)
			if err != nil {
				return err
			}
			var generic map[string]any
			if err := yaml.Unmarshal(data, &generic); err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer func() { _ = enc.Close() }()
			return enc.Encode(generic)
		},
	}

	cmd.Flags().StringVar(&factsPath, "facts", "", "YAML fact file, or 'sweden' for the demo seed")
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("facts")

	return cmd
}
