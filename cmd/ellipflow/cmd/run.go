package cmd

import (
	"fmt"

	"ellipflow/core/scheduler"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func runCmd(v *viper.Viper) *cobra.Command {
	var (
		jobIDs     []string
		operations []string
		pretend    bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute eligible operations until no job has work left",
		Long: `Execute eligible operations until no job has work left.

Each job repeatedly runs the first operation it is eligible for. An operation runs
at most --num-passes times per job per invocation, so stages that stay eligible
until a manual decision (such as run-longer before equilibrated is set) do not loop.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, name := range operations {
				if _, err := a.workflow.Operation(name); err != nil {
					return err
				}
			}
			jobs, err := a.jobs(jobIDs)
			if err != nil {
				return err
			}
			opts := scheduler.RunOptions{
				Operations: operations,
				Parallel:   a.cfg.Run.Parallel,
				NumPasses:  a.cfg.Run.NumPasses,
			}

			sched := a.scheduler()
			out := cmd.OutOrStdout()
			if pretend {
				planned, err := sched.Plan(jobs, opts)
				if err != nil {
					return err
				}
				for _, e := range planned {
					fmt.Fprintf(out, "%s %s\n", e.Operation, e.JobID)
				}
				return nil
			}

			executed, err := sched.Run(cmd.Context(), jobs, opts)
			for _, e := range executed {
				fmt.Fprintf(out, "%s %s done\n", e.Operation, e.JobID)
			}
			return err
		},
	}
	flags := cmd.Flags()
	flags.StringSliceVarP(&jobIDs, "job", "j", nil, "only these jobs")
	flags.StringSliceVarP(&operations, "operation", "o", nil, "only these operations")
	flags.Int("parallel", 1, "jobs processed concurrently")
	flags.Int("num-passes", 1, "executions of one operation per job")
	flags.BoolVar(&pretend, "pretend", false, "print what would run without running it")
	bindFlags(v, flags, map[string]string{
		"run.parallel":   "parallel",
		"run.num_passes": "num-passes",
	})
	return cmd
}

func execCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "exec OPERATION JOB...",
		Short: "Execute one operation on the given jobs regardless of eligibility",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer a.Close()

			jobs, err := a.jobs(args[1:])
			if err != nil {
				return err
			}
			return a.scheduler().Exec(cmd.Context(), jobs, args[0])
		},
	}
}
