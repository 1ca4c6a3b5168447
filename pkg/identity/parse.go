package identity

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ParsePasswd reads identity rows of the form
//
//	name:password-state:uid:gid:fullname:homedir:shell
//
// Blank lines and '#' comment lines are skipped. Rows with a malformed
// field count or non-numeric uid/gid are skipped with an issue; parsing
// never aborts on bad rows.
func ParsePasswd(r io.Reader) ([]*User, []string, error) {
	var users []*User
	var issues []string

	sc := bufio.NewScanner(r)
	lineno := 0
	for sc.Scan() {
		lineno++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ":")
		if len(fields) < 7 {
			issues = append(issues, fmt.Sprintf("passwd line %d: expected 7 fields, got %d", lineno, len(fields)))
			continue
		}
		uid, err := strconv.Atoi(fields[2])
		if err != nil {
			issues = append(issues, fmt.Sprintf("passwd line %d: bad uid %q", lineno, fields[2]))
			continue
		}
		gid, err := strconv.Atoi(fields[3])
		if err != nil {
			issues = append(issues, fmt.Sprintf("passwd line %d: bad gid %q", lineno, fields[3]))
			continue
		}
		users = append(users, &User{
			Name:     fields[0],
			Locked:   lockedPassword(fields[1]),
			UID:      uid,
			GID:      gid,
			FullName: fields[4],
			HomeDir:  fields[5],
			Shell:    fields[6],
		})
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read passwd input: %w", err)
	}
	return users, issues, nil
}

// ParseGroups reads group rows of the form
//
//	groupname:ignored:gid:member,member,...
//
// The member list holds secondary members only; primary membership comes
// from the passwd gid field.
func ParseGroups(r io.Reader) ([]*Group, []string, error) {
	var groups []*Group
	var issues []string

	sc := bufio.NewScanner(r)
	lineno := 0
	for sc.Scan() {
		lineno++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ":")
		if len(fields) < 4 {
			issues = append(issues, fmt.Sprintf("group line %d: expected 4 fields, got %d", lineno, len(fields)))
			continue
		}
		gid, err := strconv.Atoi(fields[2])
		if err != nil {
			issues = append(issues, fmt.Sprintf("group line %d: bad gid %q", lineno, fields[2]))
			continue
		}
		g := &Group{Name: fields[0], GID: gid}
		for _, m := range strings.Split(fields[3], ",") {
			if m = strings.TrimSpace(m); m != "" {
				g.Members = append(g.Members, m)
			}
		}
		groups = append(groups, g)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read group input: %w", err)
	}
	return groups, issues, nil
}

// ParseAliases reads account alias rows of the form
//
//	account:_:_:_:group,group,...
//
// mapping each listed group to the account named by the first field. The
// reserved account NOACCOUNT excludes the listed groups. A group listed
// under two accounts is a configuration error: the first definition wins
// and the collision is reported as an issue.
func ParseAliases(r io.Reader) (map[string]string, []string, error) {
	aliases := map[string]string{}
	var issues []string

	sc := bufio.NewScanner(r)
	lineno := 0
	for sc.Scan() {
		lineno++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ":")
		if len(fields) < 5 {
			issues = append(issues, fmt.Sprintf("alias line %d: expected 5 fields, got %d", lineno, len(fields)))
			continue
		}
		account := strings.TrimSpace(fields[0])
		if account == "" {
			issues = append(issues, fmt.Sprintf("alias line %d: empty account name", lineno))
			continue
		}
		for _, g := range strings.Split(fields[4], ",") {
			g = strings.TrimSpace(g)
			if g == "" {
				continue
			}
			if prev, dup := aliases[g]; dup {
				issues = append(issues, fmt.Sprintf("alias line %d: group %s already aliased to %s, ignoring %s", lineno, g, prev, account))
				continue
			}
			aliases[g] = account
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read alias input: %w", err)
	}
	return aliases, issues, nil
}
