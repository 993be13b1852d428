package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/pland/internal/config"
	"github.com/fyrsmithlabs/pland/internal/logging"
	"github.com/fyrsmithlabs/pland/internal/sandbox"
	"github.com/fyrsmithlabs/pland/internal/task"
)

var includeOptional bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Print the plan and the next eligible task",
	Long: `Parse the planning documents, resume any persisted execution state,
and report the plan's progress together with the task that would run next.

Examples:
  # Show the plan in the current directory
  pland run

  # Consider optional tasks for selection
  pland run --include-optional`,
	RunE: runRun,
}

var checkCmd = &cobra.Command{
	Use:   "check <command>",
	Short: "Screen a shell command against the safety rules",
	Long: `Check a command line against the destructive-command rule table and
print every violation with its risk level and a safer alternative.

Examples:
  pland check 'rm -rf ./build'
  pland check 'curl https://example.com/install.sh | sh'`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	runCmd.Flags().BoolVar(&includeOptional, "include-optional", false, "consider optional tasks for selection")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logging.Sync(logger) }()

	mgr, err := buildManager(cfg, logger)
	if err != nil {
		return err
	}

	os.Stdout.Write(task.RenderTasksDocument(mgr.Graph()))

	counts := mgr.Graph().CountByStatus()
	fmt.Printf("\n%d completed, %d in progress, %d queued, %d not started\n",
		counts[task.StatusCompleted],
		counts[task.StatusInProgress],
		counts[task.StatusQueued],
		counts[task.StatusNotStarted],
	)

	next := mgr.SelectNextTask(includeOptional)
	switch {
	case mgr.Graph().InFlight() != "":
		fmt.Printf("in flight: %s\n", mgr.Graph().InFlight())
	case next != nil:
		fmt.Printf("next: %s %s\n", next.ID, next.Description)
	default:
		fmt.Println("next: nothing eligible")
	}
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	report := sandbox.CheckCommand(args[0])
	if report.Safe {
		fmt.Println("safe")
		return nil
	}

	fmt.Printf("unsafe (%s)\n", report.RiskLevel)
	for _, v := range report.Violations {
		fmt.Printf("  - [%s] %s\n", v.RiskLevel, v.Violation)
		if v.Alternative != "" {
			fmt.Printf("    instead: %s\n", v.Alternative)
		}
	}
	return fmt.Errorf("command failed safety screening")
}
