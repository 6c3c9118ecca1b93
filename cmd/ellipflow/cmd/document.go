package cmd

import (
	"ellipflow/core/models"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func documentCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "document",
		Short: "Show or edit job documents",
	}
	cmd.AddCommand(documentShowCmd(v), documentSetCmd(v))
	return cmd
}

func documentShowCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "show JOB",
		Short: "Print a job's statepoint and document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer a.Close()

			job, err := a.workspace.Job(args[0])
			if err != nil {
				return err
			}
			doc, err := job.RawDocument()
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
				"id":         job.ID,
				"statepoint": job.Statepoint(),
				"document":   doc,
			})
		},
	}
}

func documentSetCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "set JOB KEY VALUE",
		Short: "Set one document key",
		Long: `Set one document key. VALUE is parsed as YAML, so true, 3 and 1.5 keep their types.

Mark a job as equilibrated once its trajectories have been inspected:

  ellipflow document set 5d4e... equilibrated true`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer a.Close()

			job, err := a.workspace.Job(args[0])
			if err != nil {
				return err
			}
			var value interface{}
			if err := yaml.Unmarshal([]byte(args[2]), &value); err != nil {
				return errors.Wrapf(err, "bad value %q", args[2])
			}
			if err := job.SetDocumentKey(args[1], value); err != nil {
				return err
			}
			a.recordEvent(cmd.Context(), job, models.ReasonEdited, map[string]interface{}{args[1]: value})
			return nil
		},
	}
}
