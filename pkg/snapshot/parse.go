package snapshot

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/clusterops/sacctsync/pkg/policy"
)

// AssocRow is one parsed association listing row. User is empty for
// account-only (group-level) rows.
type AssocRow struct {
	Account  string
	User     string
	Settings policy.Settings
}

// RosterRow is one existing-user roster row.
type RosterRow struct {
	User           string
	DefaultAccount string
	Account        string
	Cluster        string
}

// TransactionRow records a recent user creation.
type TransactionRow struct {
	User      string
	Timestamp time.Time
}

// ParseAssociations reads pipe-delimited association rows:
//
//	account|user|<factor values in canonical column order>
//
// The user column is empty for account-only rows. Values are normalized on
// ingest so diffing compares canonical forms. Rows with too few columns are
// skipped with an issue.
func ParseAssociations(r io.Reader) ([]AssocRow, []string, error) {
	var rows []AssocRow
	var issues []string

	factors := policy.Factors()
	want := 2 + len(factors)

	sc := bufio.NewScanner(r)
	lineno := 0
	for sc.Scan() {
		lineno++
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "|")
		if len(fields) < want {
			issues = append(issues, fmt.Sprintf("association line %d: expected %d columns, got %d", lineno, want, len(fields)))
			continue
		}
		row := AssocRow{
			Account:  strings.TrimSpace(fields[0]),
			User:     strings.TrimSpace(fields[1]),
			Settings: policy.Settings{},
		}
		if row.Account == "" {
			issues = append(issues, fmt.Sprintf("association line %d: empty account", lineno))
			continue
		}
		for i, f := range factors {
			row.Settings.Set(f, fields[2+i])
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read association input: %w", err)
	}
	return rows, issues, nil
}

// ParseRoster reads existing-user roster rows:
//
//	user|defaultAccount|account|cluster
//
// When cluster is non-empty, rows naming a different cluster are skipped.
func ParseRoster(r io.Reader, cluster string) ([]RosterRow, []string, error) {
	var rows []RosterRow
	var issues []string

	sc := bufio.NewScanner(r)
	lineno := 0
	for sc.Scan() {
		lineno++
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "|")
		if len(fields) < 4 {
			issues = append(issues, fmt.Sprintf("roster line %d: expected 4 columns, got %d", lineno, len(fields)))
			continue
		}
		row := RosterRow{
			User:           strings.TrimSpace(fields[0]),
			DefaultAccount: strings.TrimSpace(fields[1]),
			Account:        strings.TrimSpace(fields[2]),
			Cluster:        strings.TrimSpace(fields[3]),
		}
		if row.User == "" {
			continue
		}
		if cluster != "" && row.Cluster != "" && row.Cluster != cluster {
			continue
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read roster input: %w", err)
	}
	return rows, issues, nil
}

// transaction timestamps come either as unix seconds or as the accounting
// tool's local wall-clock format.
const txTimeLayout = "2006-01-02T15:04:05"

// ParseTransactions reads recent-creation transaction rows:
//
//	user|timestamp
func ParseTransactions(r io.Reader) ([]TransactionRow, []string, error) {
	var rows []TransactionRow
	var issues []string

	sc := bufio.NewScanner(r)
	lineno := 0
	for sc.Scan() {
		lineno++
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "|")
		if len(fields) < 2 {
			issues = append(issues, fmt.Sprintf("transaction line %d: expected 2 columns, got %d", lineno, len(fields)))
			continue
		}
		user := strings.TrimSpace(fields[0])
		raw := strings.TrimSpace(fields[1])
		ts, err := parseTxTime(raw)
		if err != nil {
			issues = append(issues, fmt.Sprintf("transaction line %d: bad timestamp %q", lineno, raw))
			continue
		}
		rows = append(rows, TransactionRow{User: user, Timestamp: ts})
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read transaction input: %w", err)
	}
	return rows, issues, nil
}

func parseTxTime(raw string) (time.Time, error) {
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0), nil
	}
	return time.ParseInLocation(txTimeLayout, raw, time.Local)
}
