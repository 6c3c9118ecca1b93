package cmd

import (
	"fmt"
	"os"

	"ellipflow/config"
	"ellipflow/core/environment"
	"ellipflow/core/scheduler"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func submitCmd(v *viper.Viper) *cobra.Command {
	var (
		jobIDs     []string
		operations []string
		pretend    bool
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit the next eligible operation of each job to the cluster",
		Long: `Submit the next eligible operation of each job to the cluster.

Each submission is a batch script that runs "ellipflow exec OPERATION JOB" inside
the allocation. The environment is chosen by --environment or by matching the
hostname against the project's environments.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer a.Close()

			env, err := environment.Detect(a.project.Environments, a.cfg.Environment, a.project.DefaultEnvironment)
			if err != nil {
				return err
			}
			jobs, err := a.jobs(jobIDs)
			if err != nil {
				return err
			}
			planned, err := a.scheduler().Plan(jobs, scheduler.RunOptions{Operations: operations})
			if err != nil {
				return err
			}

			self, err := os.Executable()
			if err != nil {
				return errors.Wrap(err, "failed to locate ellipflow executable")
			}
			submitter := environment.NewSubmitter(env, a.cfg.Partition)
			out := cmd.OutOrStdout()

			var result *multierror.Error
			for _, p := range planned {
				op, err := a.workflow.Operation(p.Operation)
				if err != nil {
					return err
				}
				job, err := a.workspace.Job(p.JobID)
				if err != nil {
					return err
				}
				req := environment.SubmitRequest{
					JobID:      p.JobID,
					Operation:  p.Operation,
					Directives: op.Directives,
					WorkDir:    job.Dir(),
					Command:    execCommand(self, a.cfg, p.Operation, p.JobID),
				}
				if pretend {
					fmt.Fprintf(out, "# %s on %s\n%s\n", p.Operation, p.JobID, submitter.Script(req))
					continue
				}
				slurmID, err := submitter.Submit(cmd.Context(), req)
				if err != nil {
					result = multierror.Append(result, err)
					continue
				}
				fmt.Fprintf(out, "%s %s submitted as %s\n", p.Operation, p.JobID, slurmID)
			}
			return result.ErrorOrNil()
		},
	}
	flags := cmd.Flags()
	flags.StringSliceVarP(&jobIDs, "job", "j", nil, "only these jobs")
	flags.StringSliceVarP(&operations, "operation", "o", nil, "only these operations")
	flags.String("environment", "", "cluster environment (default: detected from the hostname)")
	flags.String("partition", "", "partition to submit to (default: the environment's)")
	flags.BoolVar(&pretend, "pretend", false, "print the batch scripts instead of submitting them")
	bindFlags(v, flags, map[string]string{
		"environment": "environment",
		"partition":   "partition",
	})
	return cmd
}

// execCommand is the command line a batch job runs. It carries the resolved settings so
// the job sees the same ledger and logging as the submitting shell.
func execCommand(self string, cfg *config.Config, operation, jobID string) []string {
	return []string{
		self, "exec", operation, jobID,
		"--workspace", cfg.Workspace,
		"--project", cfg.Project,
		"--ledger-driver", cfg.Ledger.Driver,
		"--ledger-dsn", cfg.Ledger.DSN,
		"--log-level", cfg.Log.Level,
		"--log-format", cfg.Log.Format,
	}
}
