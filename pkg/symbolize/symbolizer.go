// Package symbolize resolves runtime instruction pointers to function
// names and source locations (SPEC_FULL.md §4.4), tracking the fraction of
// distinct resolved addresses that hit real DWARF debug info versus a
// best-effort fallback.
package symbolize

import (
	"debug/dwarf"
	"debug/elf"
	"regexp"
	"sync"

	"github.com/pkg/errors"

	"github.com/cong-or/hud/pkg/static"
)

const unknownFunctionLabel = "<unknown>"

// SourceLocation is a resolved file/line/column triple. Any field may be
// empty/zero when the DWARF line table doesn't carry it.
type SourceLocation struct {
	File   string
	Line   int
	Column int
}

// ResolvedFrame is the result of one resolve call. HasDebugInfo is false
// when no DWARF subprogram covered the address and the function name came
// from the ELF symbol table (or is the unknown label).
type ResolvedFrame struct {
	Addr          uint64
	Function      string
	Location      SourceLocation
	HasDebugInfo  bool
	Origin        Origin
}

// Symbolizer resolves addresses against one binary's DWARF debug info,
// caching results by file offset for the session lifetime (Open
// Question (i) in DESIGN.md: unbounded growth is accepted, same as the
// stack dictionary).
type Symbolizer struct {
	binaryPath string
	elfFile    *elf.File
	dwarfData  *dwarf.Data
	lineCache  []lineEntry

	mu    sync.Mutex
	cache map[uint64]ResolvedFrame

	debugInfoHits   int
	debugInfomisses int
}

type lineEntry struct {
	lowPC, highPC uint64
	function      string
	file          string
	line          int
}

// New opens binaryPath and indexes its DWARF line table. A binary with no
// debug_info section still loads successfully; every resolve then returns
// HasDebugInfo=false.
func New(binaryPath string) (*Symbolizer, error) {
	f, err := elf.Open(binaryPath)
	if err != nil {
		return nil, errors.Wrapf(err, "symbolize: open %s", binaryPath)
	}

	s := &Symbolizer{
		binaryPath: binaryPath,
		elfFile:    f,
		cache:      make(map[uint64]ResolvedFrame),
	}

	dwarfData, err := f.DWARF()
	if err != nil {
		// No DWARF section: stripped binary. Not fatal, per preflight's
		// own non-fatal treatment of missing debug info.
		return s, nil
	}
	s.dwarfData = dwarfData

	if err := s.indexLineTable(); err != nil {
		return s, nil
	}

	return s, nil
}

func (s *Symbolizer) Close() error {
	if s.elfFile != nil {
		return s.elfFile.Close()
	}
	return nil
}

// indexLineTable walks every compilation unit once, recording each
// subprogram's PC range, name, and a representative (file, line): the
// line-table row at or before the subprogram's low PC. This trades completeness
// (true per-instruction line resolution) for the bounded, one-pass cost a
// profiler's first-request latency needs.
func (s *Symbolizer) indexLineTable() error {
	reader := s.dwarfData.Reader()

	var currentCU *dwarf.Entry
	var currentLR *dwarf.LineReader
	var currentLRStart dwarf.LineReaderPos

	for {
		entry, err := reader.Next()
		if err != nil {
			return errors.Wrap(err, "symbolize: read dwarf entries")
		}
		if entry == nil {
			break
		}

		if entry.Tag == dwarf.TagCompileUnit {
			currentCU = entry
			currentLR, _ = s.dwarfData.LineReader(currentCU)
			if currentLR != nil {
				currentLRStart = currentLR.Tell()
			}
			continue
		}

		if entry.Tag != dwarf.TagSubprogram {
			continue
		}

		name, _ := entry.Val(dwarf.AttrName).(string)
		low, lowOK := entry.Val(dwarf.AttrLowpc).(uint64)
		high, highOK := entry.Val(dwarf.AttrHighpc).(uint64)
		if !lowOK || !highOK || name == "" {
			continue
		}
		// AttrHighpc is often an offset from low, not an absolute address.
		if high < low {
			high += low
		}

		file, line := s.lineForPC(currentLR, currentLRStart, low)
		s.lineCache = append(s.lineCache, lineEntry{
			lowPC: low, highPC: high, function: name, file: file, line: line,
		})
	}

	return nil
}

// lineForPC returns the best line-table row at or before pc. The line
// reader is rewound and re-scanned per lookup, which is acceptable here
// since indexing runs once per binary at open time, not on the resolve
// hot path.
func (s *Symbolizer) lineForPC(lr *dwarf.LineReader, start dwarf.LineReaderPos, pc uint64) (file string, line int) {
	if lr == nil {
		return "", 0
	}
	lr.Seek(start)

	var best dwarf.LineEntry
	found := false
	var le dwarf.LineEntry
	for lr.Next(&le) == nil {
		if le.Address <= pc {
			best = le
			found = true
		} else {
			break
		}
	}
	if !found || best.File == nil {
		return "", 0
	}
	return best.File.Name, best.Line
}

// Resolve maps a file offset (already PIE-adjusted by the caller via
// FileOffset) to a function name and source location.
func (s *Symbolizer) Resolve(fileOffset uint64) ResolvedFrame {
	s.mu.Lock()
	if cached, ok := s.cache[fileOffset]; ok {
		s.mu.Unlock()
		return cached
	}
	s.mu.Unlock()

	resolved := s.resolveUncached(fileOffset)

	s.mu.Lock()
	s.cache[fileOffset] = resolved
	if resolved.HasDebugInfo {
		s.debugInfoHits++
	} else {
		s.debugInfomisses++
	}
	s.mu.Unlock()

	return resolved
}

func (s *Symbolizer) resolveUncached(fileOffset uint64) ResolvedFrame {
	for _, e := range s.lineCache {
		if fileOffset >= e.lowPC && fileOffset < e.highPC {
			function := DemangleRust(e.function)
			return ResolvedFrame{
				Addr:         fileOffset,
				Function:     function,
				Location:     SourceLocation{File: e.file, Line: e.line},
				HasDebugInfo: true,
				Origin:       ClassifyFrame(function, e.file, true),
			}
		}
	}

	function := s.symtabFallback(fileOffset)
	return ResolvedFrame{
		Addr:         fileOffset,
		Function:     function,
		HasDebugInfo: false,
		Origin:       ClassifyFrame(function, "", true),
	}
}

// symtabFallback looks the address up in the ELF symbol table when no
// DWARF subprogram covers it; a miss there returns the unknown label.
func (s *Symbolizer) symtabFallback(addr uint64) string {
	syms, err := static.FuncSymbols(s.elfFile)
	if err != nil {
		return unknownFunctionLabel
	}

	var best *elf.Symbol
	for i := range syms {
		sym := &syms[i]
		if sym.Value <= addr && (best == nil || sym.Value > best.Value) {
			best = sym
		}
	}

	if best == nil {
		return unknownFunctionLabel
	}
	return DemangleRust(best.Name)
}

// DebugInfoFraction reports the proportion of distinct resolved file
// offsets that hit real DWARF data (cache hits are not counted again),
// feeding the dashboard's quality indicator (§4.7).
func (s *Symbolizer) DebugInfoFraction() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := s.debugInfoHits + s.debugInfomisses
	if total == 0 {
		return 0
	}
	return float64(s.debugInfoHits) / float64(total)
}

var rustHashSuffix = regexp.MustCompile(`^h[0-9a-f]{16}$`)

// DemangleRust best-effort demangles a Rust legacy-mangled symbol; v0
// ("_R...") symbols are not decoded and pass through unchanged. No
// third-party demangler appears anywhere in the retrieval pack, so this is
// a small heuristic covering the common legacy "_ZN...E" form rather than
// a spec-complete implementation; unrecognized input passes through
// unchanged, matching the original's "pass the name through" behavior for
// non-Rust targets.
func DemangleRust(symbol string) string {
	if len(symbol) < 4 || symbol[:3] != "_ZN" {
		return symbol
	}

	i := 3
	var segments []string
	for i < len(symbol) && symbol[i] != 'E' {
		start := i
		for i < len(symbol) && symbol[i] >= '0' && symbol[i] <= '9' {
			i++
		}
		if i == start {
			return symbol // malformed, give up
		}
		n := 0
		for _, c := range symbol[start:i] {
			n = n*10 + int(c-'0')
		}
		if i+n > len(symbol) {
			return symbol
		}
		segments = append(segments, symbol[i:i+n])
		i += n
	}

	if len(segments) == 0 {
		return symbol
	}
	if rustHashSuffix.MatchString(segments[len(segments)-1]) {
		segments = segments[:len(segments)-1]
	}

	out := segments[0]
	for _, seg := range segments[1:] {
		out += "::" + seg
	}
	return out
}
