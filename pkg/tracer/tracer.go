// Package tracer is the event pump (C7): it drains the ring buffer,
// resolves each event's stack through the symbolizer, and forwards the
// result to the hotspot aggregator and the dashboard without ever
// blocking the drain loop on a slow consumer.
package tracer

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/cong-or/hud/pkg/event"
	"github.com/cong-or/hud/pkg/symbolize"
)

// StackResolver is the subset of pkg/probe this package depends on,
// narrowed to an interface so tests can supply a fake.
type StackResolver interface {
	GetStackTrace(stackID int64) ([]uint64, error)
}

// Frame pairs a resolved symbol with the raw address it came from, for
// frames display and export. HasDebugInfo is false for a symtab-fallback or
// address-only degraded resolution; pkg/hotspot keys degraded frames by
// address rather than function name, since the name isn't trustworthy.
type Frame struct {
	Addr         uint64
	Function     string
	File         string
	Line         int
	Origin       symbolize.Origin
	HasDebugInfo bool
}

// ResolvedEvent is a decoded TaskEvent joined with its symbolized stack.
type ResolvedEvent struct {
	Event  event.TaskEvent
	Frames []Frame
}

// Stats tracks pump throughput for the dashboard's status line.
type Stats struct {
	Seen    uint64
	Dropped uint64
}

// markerSpan is a marker-detected blocking interval awaiting its matching
// end event, keyed by TID (SPEC_FULL.md §4.1: "on entry to start, capture
// the stack and timestamp; on entry to end, compute duration").
type markerSpan struct {
	timestampNs uint64
	frames      []Frame
}

type Option func(*Tracer)

func WithLogger(logger log.Logger) Option {
	return func(t *Tracer) { t.logger = logger }
}

func WithDuration(d time.Duration) Option {
	return func(t *Tracer) { t.durationLimit = d }
}

func WithOutputBufferSize(n int) Option {
	return func(t *Tracer) { t.outBufSize = n }
}

// Tracer owns the drain loop and exposes a channel of resolved events.
type Tracer struct {
	resolver   StackResolver
	symbolizer *symbolize.Symbolizer
	regions    []symbolize.MemoryRegion
	targetPID  int

	durationLimit time.Duration
	outBufSize    int

	out    chan ResolvedEvent
	logger log.Logger

	statsMu sync.Mutex
	stats   Stats

	openMarkers map[uint32]markerSpan
}

var ErrTargetExited = errors.New("tracer: target process exited")

func New(resolver StackResolver, symbolizer *symbolize.Symbolizer, regions []symbolize.MemoryRegion, targetPID int, opts ...Option) *Tracer {
	t := &Tracer{
		resolver:    resolver,
		symbolizer:  symbolizer,
		regions:     regions,
		targetPID:   targetPID,
		outBufSize:  4096,
		openMarkers: make(map[uint32]markerSpan),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.out = make(chan ResolvedEvent, t.outBufSize)
	return t
}

// Events returns the channel resolved events are published on. Consumers
// must not block it; the pump drops rather than waits when it's full.
func (t *Tracer) Events() <-chan ResolvedEvent {
	return t.out
}

// StatsSnapshot reads the pump's counters. Called from the dashboard's
// render goroutine on every tick while handleRaw mutates them from the
// pump goroutine, so both sides go through statsMu.
func (t *Tracer) StatsSnapshot() Stats {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	return t.stats
}

// Run drains rawEvents until ctx is canceled, the duration limit (if any)
// elapses, or the target process exits (Open Question (iii): resolved as
// clean termination with whatever export was requested already flushed by
// the caller observing ctx.Err()).
func (t *Tracer) Run(ctx context.Context, rawEvents <-chan []byte) error {
	defer close(t.out)

	start := time.Now()

	var aliveCheck <-chan time.Time
	if t.targetPID > 0 {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		aliveCheck = ticker.C
	}

	for {
		if t.durationLimit > 0 && time.Since(start) >= t.durationLimit {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil

		case <-aliveCheck:
			if !t.targetAlive() {
				return ErrTargetExited
			}

		case raw, ok := <-rawEvents:
			if !ok {
				return nil
			}
			t.handleRaw(raw)

		case <-time.After(100 * time.Millisecond):
			// Re-check the duration limit even when idle.
		}
	}
}

func (t *Tracer) targetAlive() bool {
	err := unix.Kill(t.targetPID, 0)
	return err == nil || err == unix.EPERM
}

func (t *Tracer) handleRaw(raw []byte) {
	t.statsMu.Lock()
	t.stats.Seen++
	t.statsMu.Unlock()

	evt, err := event.Decode(raw)
	if err != nil {
		t.logger.Debug().Err(err).Msg("tracer: dropping incomplete event")
		return
	}

	switch evt.EventType {
	case event.KindBlockingStart:
		var frames []Frame
		if evt.HasStack() {
			frames = t.resolveStack(evt.StackID)
		}
		t.openMarkers[evt.TID] = markerSpan{
			timestampNs: evt.TimestampNs,
			frames:      frames,
		}
		return

	case event.KindBlockingEnd:
		if detected, ok := t.synthesizeBlockingDetected(evt); ok {
			t.publish(detected)
		}
		return
	}

	resolved := ResolvedEvent{Event: evt}
	if evt.HasStack() {
		resolved.Frames = t.resolveStack(evt.StackID)
	}
	t.publish(resolved)
}

// synthesizeBlockingDetected joins a BLOCKING_END against the BLOCKING_START
// captured for the same thread, computing the duration the kernel side never
// sees (the marker's end probe has no stack of its own to report), per
// SPEC_FULL.md §4.1's "on entry to end, compute duration and emit
// BLOCKING_DETECTED with detection = marker". An end with no open start is
// dropped: a marker pair split across a session boundary has no usable
// duration to report.
func (t *Tracer) synthesizeBlockingDetected(end event.TaskEvent) (ResolvedEvent, bool) {
	start, ok := t.openMarkers[end.TID]
	if !ok {
		t.logger.Debug().Uint32("tid", end.TID).Msg("tracer: blocking_end with no matching blocking_start")
		return ResolvedEvent{}, false
	}
	delete(t.openMarkers, end.TID)

	detected := end
	detected.EventType = event.KindBlockingDetected
	detected.TimestampNs = start.timestampNs
	detected.DurationNs = end.TimestampNs - start.timestampNs
	detected.DetectionMethod = event.DetectionMarker

	return ResolvedEvent{Event: detected, Frames: start.frames}, true
}

func (t *Tracer) publish(re ResolvedEvent) {
	select {
	case t.out <- re:
	default:
		t.statsMu.Lock()
		t.stats.Dropped++
		t.statsMu.Unlock()
	}
}

func (t *Tracer) resolveStack(stackID int64) []Frame {
	return resolveFrames(t.resolver, t.regions, t.symbolizer, stackID)
}

// resolveFrames joins a raw stack-trace handle against the memory map and
// symbolizer, shared by the pump's own stack resolution and the
// classification sampler's.
func resolveFrames(resolver StackResolver, regions []symbolize.MemoryRegion, symbolizer *symbolize.Symbolizer, stackID int64) []Frame {
	addrs, err := resolver.GetStackTrace(stackID)
	if err != nil {
		return nil
	}

	frames := make([]Frame, 0, len(addrs))
	for _, addr := range addrs {
		fileOffset, ok := symbolize.FileOffset(regions, addr)
		if !ok {
			// addr falls outside every known mapped region (e.g. a vdso or
			// JIT page); a raw runtime pointer would almost never land in
			// the symbolizer's file-offset space, so don't hand it to
			// Resolve at all, degrade to an address-only frame instead.
			frames = append(frames, Frame{Addr: addr})
			continue
		}

		resolved := symbolizer.Resolve(fileOffset)
		frames = append(frames, Frame{
			Addr:         addr,
			Function:     resolved.Function,
			File:         resolved.Location.File,
			Line:         resolved.Location.Line,
			Origin:       resolved.Origin,
			HasDebugInfo: resolved.HasDebugInfo,
		})
	}
	return frames
}
