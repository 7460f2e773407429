// Package export writes resolved events to the Chrome Trace Event JSON
// format (SPEC_FULL.md §6), so a session can be opened directly in
// chrome://tracing or Perfetto for timeline inspection, and reads them back
// for replay.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/cong-or/hud/pkg/event"
	"github.com/cong-or/hud/pkg/tracer"
)

// chromeTraceEvent is one entry in the traceEvents array. See
// https://docs.google.com/document/d/1CvAClvFfyA5R-PhYUmn5OOQtYMH4h6I0nSsKchNAySU/preview
type chromeTraceEvent struct {
	Name string                 `json:"name"`
	Cat  string                 `json:"cat"`
	Ph   string                 `json:"ph"` // "B" begin, "E" end, "M" metadata
	Ts   float64                `json:"ts"` // microseconds, relative to the first event
	PID  uint32                 `json:"pid"`
	TID  uint32                 `json:"tid"`
	Args map[string]interface{} `json:"args,omitempty"`
}

type chromeTrace struct {
	TraceEvents     []chromeTraceEvent `json:"traceEvents"`
	DisplayTimeUnit string             `json:"displayTimeUnit"`
}

// ChromeTraceExporter accumulates resolved events and writes them out as one
// Chrome Trace Event document. It is not safe for concurrent use; callers
// feed it from the single consumer of tracer.Tracer.Events().
type ChromeTraceExporter struct {
	events    []chromeTraceEvent
	startNs   uint64
	haveStart bool
}

func NewChromeTraceExporter() *ChromeTraceExporter {
	return &ChromeTraceExporter{}
}

// AddEvent folds one resolved event into the trace. Execution start/end
// bookkeeping and blocking-detected sites both carry timeline-meaningful
// phases, but on different categories: "execution" spans are timeline-only
// and never fed to the hotspot aggregator on replay, while "blocking" spans
// are exactly the events buildSession (pkg/cmd/replay) re-feeds to the
// aggregator, so the category is what distinguishes them, not the presence
// of a detection method (every event kind carries one).
func (e *ChromeTraceExporter) AddEvent(re tracer.ResolvedEvent) {
	evt := re.Event

	if !e.haveStart {
		e.startNs = evt.TimestampNs
		e.haveStart = true
	}

	tsUs := 0.0
	if evt.TimestampNs >= e.startNs {
		tsUs = float64(evt.TimestampNs-e.startNs) / 1000.0
	}

	switch evt.EventType {
	case event.KindExecutionStart:
		name, file, line := frameDescription(re.Frames)

		args := map[string]interface{}{
			"worker_id": evt.WorkerID,
			"cpu_id":    evt.CPUID,
		}
		if evt.TaskID != 0 {
			args["task_id"] = evt.TaskID
		}
		if file != "" {
			args["file"] = file
		}
		if line != 0 {
			args["line"] = line
		}

		e.events = append(e.events, chromeTraceEvent{
			Name: name,
			Cat:  "execution",
			Ph:   "B",
			Ts:   tsUs,
			PID:  evt.PID,
			TID:  evt.TID,
			Args: args,
		})

	case event.KindExecutionEnd:
		e.events = append(e.events, chromeTraceEvent{
			Name: "execution",
			Cat:  "execution",
			Ph:   "E",
			Ts:   tsUs,
			PID:  evt.PID,
			TID:  evt.TID,
			Args: map[string]interface{}{
				"worker_id": evt.WorkerID,
				"cpu_id":    evt.CPUID,
			},
		})

	case event.KindBlockingDetected:
		name, file, line := frameDescription(re.Frames)

		args := map[string]interface{}{
			"worker_id":        evt.WorkerID,
			"cpu_id":           evt.CPUID,
			"detection_method": uint8(evt.DetectionMethod),
		}
		if evt.TaskID != 0 {
			args["task_id"] = evt.TaskID
		}
		if file != "" {
			args["file"] = file
		}
		if line != 0 {
			args["line"] = line
		}

		e.events = append(e.events, chromeTraceEvent{
			Name: name,
			Cat:  "blocking",
			Ph:   "B",
			Ts:   tsUs,
			PID:  evt.PID,
			TID:  evt.TID,
			Args: args,
		})
		e.events = append(e.events, chromeTraceEvent{
			Name: name,
			Cat:  "blocking",
			Ph:   "E",
			Ts:   tsUs + float64(evt.DurationNs)/1000.0,
			PID:  evt.PID,
			TID:  evt.TID,
			Args: map[string]interface{}{
				"worker_id":        evt.WorkerID,
				"cpu_id":           evt.CPUID,
				"detection_method": uint8(evt.DetectionMethod),
			},
		})
	}
}

// frameDescription returns the innermost resolved frame's function, file
// and line, or an address-only fallback when the stack couldn't be resolved
// or the frame carries no debug info (the function label isn't trustworthy
// in that case).
func frameDescription(frames []tracer.Frame) (name, file string, line int) {
	if len(frames) == 0 {
		return "execution", "", 0
	}
	f := frames[0]
	if f.HasDebugInfo {
		return f.Function, f.File, f.Line
	}
	return fmt.Sprintf("0x%x", f.Addr), f.File, f.Line
}

// EventCount reports how many events have been added, for a summary line
// printed after export.
func (e *ChromeTraceExporter) EventCount() int {
	return len(e.events)
}

// Export writes the accumulated trace, appending a thread_name metadata
// event per (pid, tid) pair observed, so viewers label worker lanes instead
// of raw thread IDs.
func (e *ChromeTraceExporter) Export(w io.Writer) error {
	all := make([]chromeTraceEvent, len(e.events))
	copy(all, e.events)

	type threadKey struct {
		pid, tid uint32
	}
	names := make(map[threadKey]uint32)
	for _, evt := range e.events {
		if wid, ok := evt.Args["worker_id"]; ok {
			if w, ok := wid.(uint32); ok {
				names[threadKey{evt.PID, evt.TID}] = w
			}
		}
	}

	for k, workerID := range names {
		all = append(all, chromeTraceEvent{
			Name: "thread_name",
			Ph:   "M",
			PID:  k.pid,
			TID:  k.tid,
			Args: map[string]interface{}{"name": workerLabel(workerID)},
		})
	}

	trace := chromeTrace{TraceEvents: all, DisplayTimeUnit: "ms"}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(trace)
}

func workerLabel(id uint32) string {
	return "Worker " + strconv.FormatUint(uint64(id), 10)
}
