package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/specialistvlad/benchgrid/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("benchgrid", flag.ContinueOnError)
	flagSet.SetOutput(output)

	// Custom usage/help text function
	flagSet.Usage = func() {
		fmt.Fprint(output, `
BenchGrid - A checkpointed, resumable benchmark pipeline runner.

Usage:
  benchgrid [options] [PLAN_PATH]

Arguments:
  PLAN_PATH
    Path to a single .hcl plan file or a directory containing .hcl files.

Options:
`)
		flagSet.PrintDefaults()
	}

	planFlag := flagSet.String("plan", "", "Path to the plan file or directory.")
	pFlag := flagSet.String("p", "", "Path to the plan file or directory (shorthand).")
	runIDFlag := flagSet.String("run-id", "", "Explicit id for a fresh run. Empty means generated.")
	resumeFlag := flagSet.Bool("resume", false, "Resume the current run from its checkpoint.")
	skipFlag := flagSet.String("skip", "", "Comma-separated optional phases to record as skipped.")
	stateDirFlag := flagSet.String("state-dir", "state", "Directory holding the run state and history.")
	resultsDirFlag := flagSet.String("results-dir", "", "Results directory. Overrides the plan's results_dir.")
	agentTokenFlag := flagSet.String("agent-token", "", "Bearer token for workload agents. Defaults to $BENCHGRID_AGENT_TOKEN.")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := ""
	if *planFlag != "" {
		path = *planFlag
	} else if *pFlag != "" {
		path = *pFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	slog.Debug("Plan path determined.", "path", path)

	if path == "" {
		slog.Debug("No plan path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	agentToken := *agentTokenFlag
	if agentToken == "" {
		agentToken = os.Getenv("BENCHGRID_AGENT_TOKEN")
	}

	var bypass []string
	for _, name := range strings.Split(*skipFlag, ",") {
		if name = strings.TrimSpace(name); name != "" {
			bypass = append(bypass, name)
		}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		PlanPath:        path,
		StateDir:        *stateDirFlag,
		ResultsDir:      *resultsDirFlag,
		RunID:           *runIDFlag,
		Resume:          *resumeFlag,
		Bypass:          bypass,
		AgentToken:      agentToken,
		HealthcheckPort: *healthPortFlag,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
	})

	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "plan", config.PlanPath)
	return config, false, nil
}
