package symbolize

import (
	"github.com/pkg/errors"
	"github.com/prometheus/procfs"
)

// MemoryRegion is one mapping of a binary into a process's address space,
// carrying the file offset needed to reverse PIE loading (SPEC_FULL.md
// §4.4 step 2).
type MemoryRegion struct {
	Start      uint64
	End        uint64
	FileOffset uint64
}

func (r MemoryRegion) Contains(addr uint64) bool {
	return addr >= r.Start && addr < r.End
}

var ErrRangeNotFound = errors.New("symbolize: no memory range found for binary")

// ParseMemoryMaps reads /proc/<pid>/maps via procfs and returns every
// mapping whose pathname matches binaryPath, ordered by start address.
func ParseMemoryMaps(pid int, binaryPath string) ([]MemoryRegion, error) {
	proc, err := procfs.NewProc(pid)
	if err != nil {
		return nil, errors.Wrapf(err, "symbolize: open proc %d", pid)
	}

	maps, err := proc.ProcMaps()
	if err != nil {
		return nil, errors.Wrapf(err, "symbolize: read maps for pid %d", pid)
	}

	var regions []MemoryRegion
	for _, m := range maps {
		if m.Pathname != binaryPath {
			continue
		}
		regions = append(regions, MemoryRegion{
			Start:      uint64(m.StartAddr),
			End:        uint64(m.EndAddr),
			FileOffset: uint64(m.Offset),
		})
	}

	if len(regions) == 0 {
		return nil, errors.Wrapf(ErrRangeNotFound, "%s in pid %d", binaryPath, pid)
	}

	return regions, nil
}

// FileOffset reverses PIE loading: file_offset = pointer - range.Start +
// range.FileOffset (SPEC_FULL.md §4.4 step 2). It returns ok=false if addr
// falls outside every region, in which case callers fall back to a
// degraded, address-only frame.
func FileOffset(regions []MemoryRegion, addr uint64) (offset uint64, ok bool) {
	for _, r := range regions {
		if r.Contains(addr) {
			return addr - r.Start + r.FileOffset, true
		}
	}
	return 0, false
}
