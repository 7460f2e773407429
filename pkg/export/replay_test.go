package export

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cong-or/hud/pkg/event"
	"github.com/cong-or/hud/pkg/tracer"
)

func buildTrace(t *testing.T) []byte {
	t.Helper()
	exp := NewChromeTraceExporter()
	exp.AddEvent(tracer.ResolvedEvent{
		Event: event.TaskEvent{
			PID: 1, TID: 2, TimestampNs: 1_000_000, EventType: event.KindExecutionStart,
			WorkerID: 3, DetectionMethod: event.DetectionScheduler,
		},
		Frames: []tracer.Frame{{Function: "myapp::work", File: "lib.rs", Line: 7, HasDebugInfo: true}},
	})
	exp.AddEvent(tracer.ResolvedEvent{
		Event: event.TaskEvent{PID: 1, TID: 2, TimestampNs: 3_000_000, EventType: event.KindExecutionEnd, WorkerID: 3},
	})

	var buf bytes.Buffer
	require.NoError(t, exp.Export(&buf))
	return buf.Bytes()
}

func TestLoadTraceReconstructsSpan(t *testing.T) {
	spans, names, err := LoadTrace(bytes.NewReader(buildTrace(t)))
	require.NoError(t, err)
	require.Len(t, spans, 1)

	span := spans[0]
	require.Equal(t, "myapp::work", span.Name)
	require.Equal(t, "execution", span.Category)
	require.Equal(t, uint32(3), span.WorkerID)
	require.Empty(t, span.DetectionMethod)
	require.Equal(t, "lib.rs", span.File)
	require.Equal(t, 7, span.Line)
	require.Equal(t, 2000.0, span.DurationUs())

	require.Equal(t, "Worker 3", names[3])
}

func TestLoadTraceReconstructsBlockingSpanWithDetectionMethod(t *testing.T) {
	exp := NewChromeTraceExporter()
	exp.AddEvent(tracer.ResolvedEvent{
		Event: event.TaskEvent{
			PID: 1, TID: 2, TimestampNs: 1_000_000, EventType: event.KindBlockingDetected,
			WorkerID: 3, DetectionMethod: event.DetectionMarker, DurationNs: 5_000_000,
		},
		Frames: []tracer.Frame{{Function: "myapp::db::query", File: "db.rs", Line: 12, HasDebugInfo: true}},
	})

	var buf bytes.Buffer
	require.NoError(t, exp.Export(&buf))

	spans, _, err := LoadTrace(&buf)
	require.NoError(t, err)
	require.Len(t, spans, 1)

	span := spans[0]
	require.Equal(t, "blocking", span.Category)
	require.Equal(t, event.DetectionMarker, span.DetectionMethod)
	require.Equal(t, 5000.0, span.DurationUs())
}

func TestLoadTraceToleratesUnmatchedEnd(t *testing.T) {
	trace := chromeTrace{
		TraceEvents: []chromeTraceEvent{
			{Name: "execution", Ph: "E", PID: 1, TID: 1},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(trace))

	spans, _, err := LoadTrace(&buf)
	require.NoError(t, err)
	require.Empty(t, spans)
}
