package probe

import (
	"debug/elf"

	"github.com/cong-or/hud/pkg/static"
)

// Marker symbol names the target process must export for the marker
// detection path (SPEC_FULL.md §4.2 step 7). A target without them simply
// falls back to the scheduler heuristic; resolution failure here is never
// fatal, matching blockingStartProg/blockingEndProg's own best-effort
// treatment in AttachMarkers.
const (
	markerStartSymbol = "trace_blocking_start"
	markerEndSymbol   = "trace_blocking_end"
)

// ResolveMarkerOffsets looks up the marker symbols' file offsets in
// exePath's ELF symbol table, the same table pkg/symbolize falls back to
// for frames with no DWARF coverage. ok is false if either symbol is
// absent, in which case the caller skips AttachMarkers entirely.
func ResolveMarkerOffsets(exePath string) (start, end uint64, ok bool) {
	f, err := elf.Open(exePath)
	if err != nil {
		return 0, 0, false
	}
	defer f.Close()

	syms, err := static.FuncSymbols(f)
	if err != nil {
		return 0, 0, false
	}

	var haveStart, haveEnd bool
	for _, sym := range syms {
		switch sym.Name {
		case markerStartSymbol:
			start, haveStart = sym.Value, true
		case markerEndSymbol:
			end, haveEnd = sym.Value, true
		}
	}

	return start, end, haveStart && haveEnd
}
