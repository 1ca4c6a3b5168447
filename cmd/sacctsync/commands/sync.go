package commands

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/clusterops/sacctsync/internal/cli/output"
	"github.com/clusterops/sacctsync/internal/logger"
	"github.com/clusterops/sacctsync/pkg/config"
	"github.com/clusterops/sacctsync/pkg/identity"
	"github.com/clusterops/sacctsync/pkg/metrics"
	"github.com/clusterops/sacctsync/pkg/policy"
	"github.com/clusterops/sacctsync/pkg/reconcile"
	"github.com/clusterops/sacctsync/pkg/snapshot"
	"github.com/spf13/cobra"
)

// accountingTool prefixes every emitted command when writing a script.
const accountingTool = "sacctmgr -i"

var (
	syncSummary bool
	syncScript  string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Compute the mutation commands for one reconciliation run",
	Long: `Read the identity, association and policy inputs named in the
configuration, resolve the desired settings for every eligible user, diff
them against the current accounting state, and print the resulting
accounting-tool commands together with advisory notices.

The run is a pure computation: nothing is executed. Pipe the output into
the accounting tool, or use --script to write an executable shell script.

Examples:
  # Print notices and commands
  sacctsync sync

  # Summarize the plan as a table
  sacctsync sync --summary

  # Write an executable script
  sacctsync sync --script /tmp/sync.sh`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncSummary, "summary", false, "Print the plan as a table instead of raw commands")
	syncCmd.Flags().StringVar(&syncScript, "script", "", "Write the commands as an executable shell script")
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}
	if cfg.Inputs.Policy == "" {
		return fmt.Errorf("no policy input configured (inputs.policy)")
	}

	start := time.Now()
	plan, scanned, err := computePlan(cfg)
	if err != nil {
		return err
	}

	ops := plan.Ops()
	logger.Info("Reconciliation complete",
		"users", scanned,
		"operations", len(ops),
		"notices", len(plan.Notices()),
		"duration_ms", time.Since(start).Milliseconds())

	if cfg.Metrics.Enabled {
		if err := writeMetrics(cfg, plan, scanned); err != nil {
			logger.Error("Failed to write metrics textfile", "error", err)
		}
	}

	if syncScript != "" {
		if err := writeScript(syncScript, ops); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d commands to %s\n", len(ops), syncScript)
		return nil
	}

	if syncSummary {
		return printSummary(cmd.OutOrStdout(), plan)
	}

	for _, e := range plan.Events() {
		if e.Op != nil {
			fmt.Fprintln(cmd.OutOrStdout(), e.Op.Command())
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "# notice: %s\n", e.Notice)
		}
	}
	return nil
}

// computePlan loads every input, builds the immutable run snapshots, and
// runs the reconciliation engine over them.
func computePlan(cfg *config.Config) (*reconcile.Plan, int, error) {
	users, issues, err := parseInput(cfg.Inputs.Passwd, identity.ParsePasswd)
	if err != nil {
		return nil, 0, err
	}
	logIssues(issues)

	groups, issues, err := parseInput(cfg.Inputs.Group, identity.ParseGroups)
	if err != nil {
		return nil, 0, err
	}
	logIssues(issues)

	aliases, issues, err := parseInput(cfg.Inputs.Aliases, identity.ParseAliases)
	if err != nil {
		return nil, 0, err
	}
	logIssues(issues)

	dir := identity.NewDirectory(users, groups, aliases)

	assocRows, issues, err := parseInput(cfg.Inputs.Associations, snapshot.ParseAssociations)
	if err != nil {
		return nil, 0, err
	}
	logIssues(issues)

	rosterRows, issues, err := parseInput(cfg.Inputs.Roster, func(r io.Reader) ([]snapshot.RosterRow, []string, error) {
		return snapshot.ParseRoster(r, cfg.Cluster)
	})
	if err != nil {
		return nil, 0, err
	}
	logIssues(issues)

	txRows, issues, err := parseInput(cfg.Inputs.Transactions, snapshot.ParseTransactions)
	if err != nil {
		return nil, 0, err
	}
	logIssues(issues)

	snap, notices := snapshot.Build(assocRows, rosterRows, txRows)
	for _, n := range notices {
		logger.Info("Snapshot self-heal", "notice", n)
	}

	f, err := os.Open(cfg.Inputs.Policy)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open policy input: %w", err)
	}
	defer f.Close()
	pol, polIssues, err := policy.Parse(f, dir.HasGroup)
	if err != nil {
		return nil, 0, err
	}
	for _, i := range polIssues {
		logger.Warn("Policy parse issue", "line", i.Line, "msg", i.Msg)
	}

	opts := reconcile.Options{
		MinUID:              cfg.MinUID,
		GraceWindow:         cfg.GraceWindow,
		SkipLocked:          cfg.SkipLocked,
		RequireHome:         cfg.RequireHome,
		EnforcePrimaryGroup: cfg.EnforcePrimaryGroup,
		NologinShells:       cfg.NologinShells,
	}
	return reconcile.Run(dir, snap, pol, opts), len(users), nil
}

// parseInput opens path and runs parse over it. An empty path yields empty
// results; a configured path that cannot be opened is fatal to the run.
func parseInput[T any](path string, parse func(io.Reader) (T, []string, error)) (T, []string, error) {
	var zero T
	if path == "" {
		return zero, nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return zero, nil, fmt.Errorf("failed to open input %s: %w", path, err)
	}
	defer f.Close()
	return parse(f)
}

func logIssues(issues []string) {
	for _, msg := range issues {
		logger.Warn("Input parse issue", "msg", msg)
	}
}

func printSummary(w io.Writer, plan *reconcile.Plan) error {
	table := output.NewTableData("Verb", "User", "Account", "Settings")
	for _, op := range plan.Ops() {
		var args []string
		for _, a := range op.Args {
			args = append(args, a.Key+"="+a.Value)
		}
		table.AddRow(string(op.Verb), op.User, op.Account, strings.Join(args, " "))
	}
	if err := output.PrintTable(w, table); err != nil {
		return err
	}
	for _, n := range plan.Notices() {
		fmt.Fprintf(w, "notice: %s\n", n)
	}
	return nil
}

func writeScript(path string, ops []reconcile.Op) error {
	var b strings.Builder
	b.WriteString("#!/bin/sh\nset -e\n")
	for _, op := range ops {
		b.WriteString(accountingTool)
		b.WriteByte(' ')
		b.WriteString(op.Command())
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0755); err != nil {
		return fmt.Errorf("failed to write script: %w", err)
	}
	return nil
}

func writeMetrics(cfg *config.Config, plan *reconcile.Plan, scanned int) error {
	run := metrics.NewRun()
	run.ObserveUsers(scanned)
	for _, op := range plan.Ops() {
		run.ObserveOp(string(op.Verb))
	}
	run.ObserveNotices(len(plan.Notices()))
	run.SetLastRun(time.Now().Unix())
	return run.WriteTextfile(cfg.Metrics.Textfile)
}
