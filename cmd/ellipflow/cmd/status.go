package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"ellipflow/core/models"
	"ellipflow/core/monitoring"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func statusCmd(v *viper.Viper) *cobra.Command {
	var (
		jobIDs   []string
		detailed bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show where every job stands in the workflow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer a.Close()

			jobs, err := a.jobs(jobIDs)
			if err != nil {
				return err
			}
			report, err := monitoring.NewJobMonitor(a.workflow, a.events).Collect(cmd.Context(), jobs)
			if err != nil {
				return err
			}
			printStatus(cmd, a.project.Name, report, detailed)
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&jobIDs, "job", "j", nil, "only these jobs")
	cmd.Flags().BoolVarP(&detailed, "detailed", "d", false, "show labels and the last recorded event")
	return cmd
}

func printStatus(cmd *cobra.Command, project string, report *monitoring.StatusReport, detailed bool) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Project %s: %d jobs\n\n", project, len(report.Jobs))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STATE\tJOBS")
	for _, state := range models.States {
		if n := report.Counts[state]; n > 0 {
			fmt.Fprintf(w, "%s\t%d\n", state, n)
		}
	}
	w.Flush()
	fmt.Fprintln(out)

	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := "JOB\tSTATE\tRUNS\tPRODUCTION\tNEXT"
	if detailed {
		header += "\tLABELS\tLAST EVENT"
	}
	fmt.Fprintln(w, header)
	for _, s := range report.Jobs {
		next := strings.Join(s.Eligible, ",")
		if next == "" {
			next = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s", s.JobID, s.State, s.Runs, s.ProductionRuns, next)
		if detailed {
			last := "-"
			if s.LastEvent != nil {
				last = fmt.Sprintf("%s %s %s", s.LastEvent.At.Format("2006-01-02 15:04"), s.LastEvent.Operation, s.LastEvent.Reason)
			}
			fmt.Fprintf(w, "\t%s\t%s", strings.Join(s.Labels, ","), last)
		}
		fmt.Fprintln(w)
	}
	w.Flush()

	if ops := report.Usage.Operations(); len(ops) > 0 {
		fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "OPERATION\tWALLTIME\tGPU HOURS")
		for _, op := range ops {
			fmt.Fprintf(w, "%s\t%.1fh\t%.1f\n", op, report.Usage.Walltime[op]/3600, report.Usage.GPUHours[op])
		}
		fmt.Fprintf(w, "total\t\t%.1f\n", report.Usage.TotalGPUHours())
		w.Flush()
	}
}
