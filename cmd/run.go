// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
	"github.com/xkilldash9x/webpilot-cli/internal/browse"
	"github.com/xkilldash9x/webpilot-cli/internal/observability"
	"github.com/xkilldash9x/webpilot-cli/internal/orchestrator"
	"github.com/xkilldash9x/webpilot-cli/internal/resolver"
	"github.com/xkilldash9x/webpilot-cli/internal/target"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const pollInterval = 250 * time.Millisecond

// newRunCmd creates and configures the `run` command. It submits one job,
// waits for it to settle, and prints the final record.
func newRunCmd() *cobra.Command {
	var (
		username      string
		password      string
		challengeCode string
		baseURL       string
		extraParams   []string
		stepsFile     string
	)

	runCmd := &cobra.Command{
		Use:   "run <job-type>",
		Short: "Submit an automation job and wait for it to finish",
		Long: `Submits one job against the target profile and blocks until it reaches a
terminal state. The final job record, including extracted results and the
execution log, is printed as JSON. Use job type "workflow" together with
--steps-file to run an ad hoc workflow.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg := appConfig

			params, err := buildJobParams(username, password, challengeCode, baseURL, extraParams, stepsFile)
			if err != nil {
				return err
			}

			store, cleanup, err := newJobStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			proposer, err := newProposer(cfg, logger)
			if err != nil {
				return err
			}

			manager := browse.NewManager(cfg.Browser(), logger)
			defer manager.Shutdown()

			profile := target.MockSaaS()
			res := resolver.New(cfg.Resolver(), logger, proposer)
			orch := orchestrator.New(cfg, logger, store, profile, res, manager.NewBrowser)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if err := orch.Shutdown(shutdownCtx); err != nil {
					logger.Warn("Orchestrator shutdown did not settle", zap.Error(err))
				}
			}()

			job, err := orch.Submit(ctx, schemas.JobType(args[0]), params)
			if err != nil {
				return err
			}
			logger.Info("Job submitted", zap.String("job_id", job.ID))

			final, err := awaitJob(ctx, orch, job.ID)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(final, "", "  ")
			if err != nil {
				return fmt.Errorf("encoding job record: %w", err)
			}
			fmt.Fprintln(os.Stdout, string(out))

			if final.Status != schemas.JobCompleted {
				return fmt.Errorf("job %s finished with status %s", final.ID, final.Status)
			}
			return nil
		},
	}

	runCmd.Flags().StringVar(&username, "username", "", "login username for the target system")
	runCmd.Flags().StringVar(&password, "password", "", "login password for the target system")
	runCmd.Flags().StringVar(&challengeCode, "challenge-code", "", "one-time code for the login challenge round")
	runCmd.Flags().StringVar(&baseURL, "base-url", "", "override the profile's base URL")
	runCmd.Flags().StringArrayVar(&extraParams, "param", nil, "extra job parameter as key=value (repeatable)")
	runCmd.Flags().StringVar(&stepsFile, "steps-file", "", "JSON file with workflow steps (job type \"workflow\")")

	return runCmd
}

// awaitJob polls until the job settles. A signal cancels the job once and
// keeps waiting so the record still reflects the cooperative shutdown.
func awaitJob(ctx context.Context, orch *orchestrator.Orchestrator, id string) (*schemas.Job, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	done := ctx.Done()
	for {
		select {
		case <-done:
			done = nil
			_ = orch.Cancel(context.Background(), id)
		case <-ticker.C:
		}

		job, err := orch.Get(context.Background(), id)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() {
			return job, nil
		}
	}
}

func buildJobParams(username, password, challengeCode, baseURL string, extra []string, stepsFile string) (map[string]any, error) {
	params := map[string]any{}
	if username != "" {
		params["username"] = username
	}
	if password != "" {
		params["password"] = password
	}
	if challengeCode != "" {
		params["challenge_code"] = challengeCode
	}
	if baseURL != "" {
		params["base_url"] = baseURL
	}
	for _, kv := range extra {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q, expected key=value", kv)
		}
		params[key] = value
	}
	if stepsFile != "" {
		raw, err := os.ReadFile(stepsFile)
		if err != nil {
			return nil, fmt.Errorf("reading steps file: %w", err)
		}
		var steps []schemas.Step
		if err := json.Unmarshal(raw, &steps); err != nil {
			return nil, fmt.Errorf("parsing steps file: %w", err)
		}
		params["steps"] = steps
	}
	return params, nil
}
