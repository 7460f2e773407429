// Package lookup resolves a process name to a PID and executable path
// (SPEC_FULL.md §4.3 "Process lookup (C10, supplemented from
// original_source)"), used when the CLI is given --target instead of --pid.
package lookup

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/procfs"
)

// ProcessInfo is a single matched process.
type ProcessInfo struct {
	PID     int
	ExePath string
	Command string
}

var (
	ErrNoMatch       = errors.New("lookup: no process matching name found")
	ErrAmbiguousName = errors.New("lookup: multiple processes match name")
)

// FindByName scans every process on the system for one whose comm or
// executable basename matches name, either exactly or as a substring. Zero
// matches and more than one match are both fatal target errors carrying a
// corrective message, per spec.
func FindByName(name string) (ProcessInfo, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return ProcessInfo{}, errors.Wrap(err, "lookup: open procfs")
	}

	procs, err := fs.AllProcs()
	if err != nil {
		return ProcessInfo{}, errors.Wrap(err, "lookup: list processes")
	}

	var matches []ProcessInfo
	for _, p := range procs {
		exe, err := p.Executable()
		if err != nil || exe == "" {
			continue
		}

		comm, err := p.Comm()
		if err != nil {
			continue
		}

		if isMatch(comm, exe, name) {
			matches = append(matches, ProcessInfo{PID: p.PID, ExePath: exe, Command: comm})
		}
	}

	switch len(matches) {
	case 0:
		return ProcessInfo{}, errors.Wrapf(ErrNoMatch,
			"'%s'; check running processes with: ps aux | grep %s", name, name)
	case 1:
		return matches[0], nil
	default:
		var b strings.Builder
		for _, m := range matches {
			fmt.Fprintf(&b, "  %d (%s)\n", m.PID, m.Command)
		}
		return ProcessInfo{}, errors.Wrapf(ErrAmbiguousName,
			"'%s':\n%sspecify PID explicitly with --pid", name, b.String())
	}
}

// ResolveExePath returns the executable path backing pid.
func ResolveExePath(pid int) (string, error) {
	p, err := procfs.NewProc(pid)
	if err != nil {
		return "", errors.Wrapf(err, "lookup: open proc %d", pid)
	}
	exe, err := p.Executable()
	if err != nil {
		return "", errors.Wrapf(err, "lookup: resolve exe for pid %d", pid)
	}
	return exe, nil
}

func isMatch(command, exePath, pattern string) bool {
	exeBasename := filepath.Base(exePath)
	patternBasename := filepath.Base(pattern)

	return command == patternBasename ||
		exeBasename == patternBasename ||
		strings.Contains(command, pattern) ||
		strings.Contains(exeBasename, pattern)
}
