package cmd

import (
	"github.com/corey/linecheck/internal/app"
	"github.com/spf13/cobra"
)

var configJSON bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show effective configuration",
	Long:  "Prints the configuration after file, environment and defaults are merged, plus the strategy it resolves to. No server required.",
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configJSON, "json", false, "Output as JSON")
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	res, err := app.ResolveKind(cfg.Match, cfg.RereadOnQuery)
	if err != nil {
		return err
	}
	source := configPath()
	if source == "" {
		source = "./config.json (if present)"
	}

	w := cmd.OutOrStdout()
	if configJSON {
		return writeConfigJSON(w, cfg, res)
	}
	writeConfigText(w, source, cfg, res)
	return nil
}
