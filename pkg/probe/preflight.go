package probe

import (
	"debug/elf"
	"fmt"
	"os"
	"strconv"
	"strings"

	log "github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// minKernelVersion is the lowest kernel known to support the ring buffer
// map type this profiler depends on.
var minKernelVersion = [2]int{5, 8}

// RunPreflightChecks runs the attach-time sanity pass required before any
// program is loaded (SPEC_FULL.md §4.2): privilege, kernel version, target
// binary presence, and (best-effort, non-fatal) debug-info availability.
func RunPreflightChecks(targetPath string, quiet bool, logger log.Logger) error {
	if err := checkPrivileges(); err != nil {
		return err
	}
	if err := checkKernelVersion(); err != nil {
		return err
	}
	if err := checkBinaryExists(targetPath); err != nil {
		return err
	}
	checkDebugSymbols(targetPath, quiet, logger)
	return nil
}

func checkPrivileges() error {
	if os.Geteuid() == 0 {
		return nil
	}
	return fmt.Errorf("%w: permission denied: hud requires root or CAP_BPF+CAP_PERFMON to load eBPF programs; run with sudo", ErrMissingCapability)
}

func checkKernelVersion() error {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		// Can't determine the version; assume it's fine rather than block.
		return nil
	}

	release := charsToString(uts.Release[:])
	major, minor, ok := parseKernelRelease(release)
	if !ok {
		return nil
	}

	if major < minKernelVersion[0] || (major == minKernelVersion[0] && minor < minKernelVersion[1]) {
		return fmt.Errorf("%w: kernel %d.%d is too old, hud requires Linux %d.%d or newer for eBPF ring buffer support (detected: %s)",
			ErrKernelTooOld, major, minor, minKernelVersion[0], minKernelVersion[1], release)
	}

	return nil
}

func parseKernelRelease(release string) (major, minor int, ok bool) {
	parts := strings.SplitN(release, ".", 3)
	if len(parts) < 2 {
		return 0, 0, false
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	minor, ok = parseLeadingDigits(parts[1])
	return major, minor, ok
}

func parseLeadingDigits(s string) (int, bool) {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	return n, err == nil
}

func charsToString(c []byte) string {
	n := 0
	for n < len(c) && c[n] != 0 {
		n++
	}
	return string(c[:n])
}

func checkBinaryExists(targetPath string) error {
	info, err := os.Stat(targetPath)
	if err != nil {
		return fmt.Errorf("%w: %s (%v)", ErrTargetNotFound, targetPath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory, --target must point to an executable file", ErrTargetNotFound, targetPath)
	}
	return nil
}

// checkDebugSymbols warns, but never fails, when the target lacks DWARF
// debug info or a symbol table. The result feeds the debug-info-fraction
// indicator surfaced by the dashboard (§4.7), not the attach decision.
func checkDebugSymbols(targetPath string, quiet bool, logger log.Logger) {
	if quiet {
		return
	}

	f, err := elf.Open(targetPath)
	if err != nil {
		return
	}
	defer f.Close()

	hasDebugInfo := sectionNonEmpty(f, ".debug_info")
	hasSymtab := sectionNonEmpty(f, ".symtab")

	switch {
	case !hasDebugInfo && !hasSymtab:
		logger.Warn().Str("target", targetPath).Msg("binary is stripped, stack traces will show addresses only")
	case !hasDebugInfo:
		logger.Warn().Str("target", targetPath).Msg("no DWARF debug info, source locations unavailable")
	}
}

func sectionNonEmpty(f *elf.File, name string) bool {
	s := f.Section(name)
	return s != nil && s.Size > 0
}
