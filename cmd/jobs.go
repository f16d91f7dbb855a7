// File: cmd/jobs.go
package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
	"github.com/xkilldash9x/webpilot-cli/internal/observability"
)

// newJobsCmd groups the registry query commands. They read the configured
// backend directly, so they are only useful with a persistent one.
func newJobsCmd() *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect the job registry",
	}
	jobsCmd.AddCommand(newJobsListCmd())
	jobsCmd.AddCommand(newJobsGetCmd())
	jobsCmd.AddCommand(newJobsCancelCmd())
	return jobsCmd
}

func newJobsListCmd() *cobra.Command {
	var (
		status string
		kind   string
		limit  int
	)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			if appConfig.RegistryCfg.Backend == "memory" {
				logger.Warn("The memory registry is process-local; `jobs list` only sees jobs from this invocation")
			}

			store, cleanup, err := newJobStore(ctx, appConfig, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			jobs, err := store.List(ctx, schemas.JobFilter{
				Status: schemas.JobStatus(status),
				Type:   schemas.JobType(kind),
				Limit:  limit,
			})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tCREATED\tCOMPLETED")
			for _, job := range jobs {
				completed := "-"
				if job.CompletedAt != nil {
					completed = job.CompletedAt.UTC().Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					job.ID, job.Type, job.Status,
					job.CreatedAt.UTC().Format(time.RFC3339), completed)
			}
			return w.Flush()
		},
	}

	listCmd.Flags().StringVar(&status, "status", "", "filter by status (queued|running|completed|failed|cancelled)")
	listCmd.Flags().StringVar(&kind, "type", "", "filter by job type")
	listCmd.Flags().IntVar(&limit, "limit", 0, fmt.Sprintf("maximum rows to return (default %d)", schemas.DefaultListLimit))

	return listCmd
}

func newJobsCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a pending job",
		Long: `Checks the registry and reports whether the job can still be cancelled.
Live jobs are owned by the process that submitted them (which cancels on
SIGINT); this command can only verify terminal state from the registry.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, cleanup, err := newJobStore(ctx, appConfig, observability.GetLogger())
			if err != nil {
				return err
			}
			defer cleanup()

			job, err := store.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if job.Status.Terminal() {
				return schemas.ErrAlreadyTerminal
			}
			return fmt.Errorf("job %s is %s and owned by the submitting process; interrupt that process to cancel it", job.ID, job.Status)
		},
	}
}

func newJobsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <job-id>",
		Short: "Print one job record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, cleanup, err := newJobStore(ctx, appConfig, observability.GetLogger())
			if err != nil {
				return err
			}
			defer cleanup()

			job, err := store.Get(ctx, args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(job, "", "  ")
			if err != nil {
				return fmt.Errorf("encoding job record: %w", err)
			}
			fmt.Fprintln(os.Stdout, string(out))
			return nil
		},
	}
}
