// Package hotspot aggregates blocking-detection events into unique
// blocking sites, keyed by stack signature (SPEC_FULL.md §4.6).
package hotspot

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/cong-or/hud/pkg/tracer"
)

// Occurrence is one timestamped observation folded into a Hotspot, kept
// only long enough to support the rolling-window lazy filter.
type Occurrence struct {
	TimestampNs uint64
	DurationNs  uint64
	WorkerID    uint32
}

// Hotspot is a unique blocking site: a stack signature with its
// accumulated statistics.
type Hotspot struct {
	Key          uint64
	Frames       []tracer.Frame
	HitCount     uint64
	TotalTimeNs  uint64
	LastSeenNs   uint64
	Workers      map[uint32]uint64 // worker id -> hit count
	occurrences  []Occurrence
}

// Aggregator maintains the hotspot set for one session. A zero-value
// window disables the rolling-window feature: all recorded time counts as
// visible.
type Aggregator struct {
	mu      sync.Mutex
	byKey   map[uint64]*Hotspot
	window  time.Duration
	nowFunc func() uint64
}

func New(window time.Duration) *Aggregator {
	return &Aggregator{
		byKey:  make(map[uint64]*Hotspot),
		window: window,
	}
}

// Record folds one BLOCKING_DETECTED observation into its hotspot, finding
// or creating it by stack signature.
func (a *Aggregator) Record(frames []tracer.Frame, timestampNs, durationNs uint64, workerID uint32) {
	key := signature(frames)

	a.mu.Lock()
	defer a.mu.Unlock()

	h, ok := a.byKey[key]
	if !ok {
		h = &Hotspot{Key: key, Frames: frames, Workers: make(map[uint32]uint64)}
		a.byKey[key] = h
	}

	h.HitCount++
	h.TotalTimeNs += durationNs
	if timestampNs > h.LastSeenNs {
		h.LastSeenNs = timestampNs
	}
	h.Workers[workerID]++
	h.occurrences = append(h.occurrences, Occurrence{TimestampNs: timestampNs, DurationNs: durationNs, WorkerID: workerID})
}

// signature hashes the resolved frame sequence into a stable key. Frames
// without debug info key by file offset (the address) rather than
// function name, per spec, since the function label is unreliable there.
func signature(frames []tracer.Frame) uint64 {
	h := xxhash.New()
	for _, f := range frames {
		if f.HasDebugInfo {
			_, _ = h.WriteString(f.Function)
		} else {
			_, _ = h.WriteString(strconv.FormatUint(f.Addr, 16))
		}
		_, _ = h.WriteString("|")
	}
	return h.Sum64()
}

// Snapshot is a read-only view of one hotspot at query time, with
// window-filtered totals applied lazily (no per-event eviction).
type Snapshot struct {
	Key         uint64
	Frames      []tracer.Frame
	HitCount    uint64
	TotalTimeNs uint64
	LastSeenNs  uint64
	Workers     map[uint32]uint64
}

// Top returns every hotspot with at least one visible occurrence,
// descending by total accumulated time within the window, ties broken by
// hit count (SPEC_FULL.md §4.6 "Sort order").
func (a *Aggregator) Top(nowNs uint64) []Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snapshots := make([]Snapshot, 0, len(a.byKey))
	for _, h := range a.byKey {
		snap := a.filterWindow(h, nowNs)
		if snap.HitCount == 0 {
			continue
		}
		snapshots = append(snapshots, snap)
	}

	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].TotalTimeNs != snapshots[j].TotalTimeNs {
			return snapshots[i].TotalTimeNs > snapshots[j].TotalTimeNs
		}
		return snapshots[i].HitCount > snapshots[j].HitCount
	})

	return snapshots
}

func (a *Aggregator) filterWindow(h *Hotspot, nowNs uint64) Snapshot {
	if a.window == 0 {
		workers := make(map[uint32]uint64, len(h.Workers))
		for k, v := range h.Workers {
			workers[k] = v
		}
		return Snapshot{
			Key: h.Key, Frames: h.Frames, HitCount: h.HitCount,
			TotalTimeNs: h.TotalTimeNs, LastSeenNs: h.LastSeenNs, Workers: workers,
		}
	}

	cutoff := uint64(0)
	if windowNs := uint64(a.window.Nanoseconds()); nowNs > windowNs {
		cutoff = nowNs - windowNs
	}

	snap := Snapshot{Key: h.Key, Frames: h.Frames, Workers: make(map[uint32]uint64)}
	for _, occ := range h.occurrences {
		if occ.TimestampNs < cutoff {
			continue
		}
		snap.HitCount++
		snap.TotalTimeNs += occ.DurationNs
		snap.Workers[occ.WorkerID]++
		if occ.TimestampNs > snap.LastSeenNs {
			snap.LastSeenNs = occ.TimestampNs
		}
	}

	return snap
}
