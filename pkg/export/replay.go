package export

import (
	"encoding/json"
	"io"
	"sort"

	"github.com/pkg/errors"

	"github.com/cong-or/hud/pkg/event"
)

// Span is one reconstructed begin/end pair from a replayed trace, matching
// the live dashboard's notion of an execution or blocking interval closely
// enough to drive the same Analysis/DrillDown views against a saved file.
type Span struct {
	Name            string
	Category        string
	PID, TID        uint32
	WorkerID        uint32
	DetectionMethod event.DetectionMethod
	File            string
	Line            int
	StartUs         float64
	EndUs           float64
}

func (s Span) DurationUs() float64 {
	return s.EndUs - s.StartUs
}

// ErrUnmatchedSpan is logged, not returned, when an end event has no
// corresponding begin on the same thread; replay tolerates a truncated
// capture rather than failing the whole load.
var ErrUnmatchedSpan = errors.New("export: end event with no matching begin")

// LoadTrace parses a Chrome Trace Event document previously written by
// ChromeTraceExporter.Export and reconstructs its begin/end pairs into
// Spans, plus the worker names carried in the trace's metadata events.
//
// Matching is per (pid, tid), last-begin-first-matched: this mirrors how the
// live pump nests execution spans within a thread, since Tokio workers never
// interleave two top-level spans on the same OS thread.
func LoadTrace(r io.Reader) ([]Span, map[uint32]string, error) {
	var trace chromeTrace
	if err := json.NewDecoder(r).Decode(&trace); err != nil {
		return nil, nil, errors.Wrap(err, "export: decode trace json")
	}

	type threadKey struct {
		pid, tid uint32
	}
	pending := make(map[threadKey][]chromeTraceEvent)
	threadNames := make(map[threadKey]string)

	var spans []Span
	for _, evt := range trace.TraceEvents {
		switch evt.Ph {
		case "B":
			key := threadKey{evt.PID, evt.TID}
			pending[key] = append(pending[key], evt)

		case "E":
			key := threadKey{evt.PID, evt.TID}
			stack := pending[key]
			if len(stack) == 0 {
				continue // tolerate a truncated capture (ErrUnmatchedSpan)
			}
			begin := stack[len(stack)-1]
			pending[key] = stack[:len(stack)-1]

			spans = append(spans, spanFromEvents(begin, evt))

		case "M":
			if evt.Name != "thread_name" {
				continue
			}
			if name, ok := evt.Args["name"].(string); ok {
				threadNames[threadKey{evt.PID, evt.TID}] = name
			}
		}
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].StartUs < spans[j].StartUs })

	names := make(map[uint32]string, len(threadNames))
	for _, span := range spans {
		if name, ok := threadNames[threadKey{span.PID, span.TID}]; ok {
			names[span.WorkerID] = name
		}
	}

	return spans, names, nil
}

func spanFromEvents(begin, end chromeTraceEvent) Span {
	span := Span{
		Name:     begin.Name,
		Category: begin.Cat,
		PID:      begin.PID,
		TID:      begin.TID,
		StartUs:  begin.Ts,
		EndUs:    end.Ts,
	}

	if wid, ok := uintArg(begin.Args, "worker_id"); ok {
		span.WorkerID = uint32(wid)
	}
	if dm, ok := uintArg(begin.Args, "detection_method"); ok {
		span.DetectionMethod = event.DetectionMethod(dm)
	}
	if f, ok := begin.Args["file"].(string); ok {
		span.File = f
	}
	if ln, ok := uintArg(begin.Args, "line"); ok {
		span.Line = int(ln)
	}

	return span
}

// uintArg reads a numeric arg decoded by encoding/json, which always
// produces float64 for untyped JSON numbers.
func uintArg(args map[string]interface{}, key string) (uint64, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return uint64(f), true
}
