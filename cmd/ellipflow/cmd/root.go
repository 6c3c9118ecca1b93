package cmd

import (
	"ellipflow/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands are registered here.
func RootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "ellipflow",
		Short: "ellipflow drives parameter sweeps of ellipsoid-chain simulations through their workflow.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return config.ConfigureLogging(cfg.Log)
		},
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "project root holding workspace/")
	flags.StringP("project", "p", "project.yaml", "project definition, relative to the workspace")
	flags.String("log-level", "info", "log level")
	flags.String("log-format", "text", "log format: text or json")
	flags.String("ledger-driver", "sqlite", "ledger database: sqlite or postgres")
	flags.String("ledger-dsn", "", "ledger data source name (default <workspace>/ellipflow.db)")
	bindFlags(v, flags, map[string]string{
		"workspace":     "workspace",
		"project":       "project",
		"log.level":     "log-level",
		"log.format":    "log-format",
		"ledger.driver": "ledger-driver",
		"ledger.dsn":    "ledger-dsn",
	})

	cmd.AddCommand(
		initCmd(v),
		statusCmd(v),
		runCmd(v),
		execCmd(v),
		submitCmd(v),
		documentCmd(v),
	)
	return cmd
}
