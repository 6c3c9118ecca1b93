package cmd

import (
	"fmt"

	"ellipflow/core/models"
	"ellipflow/core/stages"
	"ellipflow/core/sweep"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func initCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create one job per parameter combination of the project",
		Long: `Create one job per parameter combination of the project and seed its document.

Running init again is safe: existing jobs keep their documents and only missing
jobs are created.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer a.Close()

			statepoints := sweep.Statepoints(a.project.Parameters)
			jobs, err := a.workspace.InitProject(statepoints, stages.DocumentDefaults(a.project))
			if err != nil {
				return err
			}
			for _, job := range jobs {
				a.recordEvent(cmd.Context(), job, models.ReasonInitialized, nil)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized %d jobs in %s\n", len(jobs), a.workspace.Root())
			return nil
		},
	}
}
