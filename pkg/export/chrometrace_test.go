package export

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cong-or/hud/pkg/event"
	"github.com/cong-or/hud/pkg/tracer"
)

func TestChromeTraceExporterWritesBeginEndPair(t *testing.T) {
	exp := NewChromeTraceExporter()

	exp.AddEvent(tracer.ResolvedEvent{
		Event: event.TaskEvent{
			PID: 1, TID: 2, TimestampNs: 1_000_000, EventType: event.KindExecutionStart,
			WorkerID: 3, CPUID: 0, DetectionMethod: event.DetectionScheduler,
		},
		Frames: []tracer.Frame{{Function: "myapp::handler::process", File: "handler.rs", Line: 42, HasDebugInfo: true}},
	})
	exp.AddEvent(tracer.ResolvedEvent{
		Event: event.TaskEvent{
			PID: 1, TID: 2, TimestampNs: 2_000_000, EventType: event.KindExecutionEnd,
			WorkerID: 3,
		},
	})

	require.Equal(t, 2, exp.EventCount())

	var buf bytes.Buffer
	require.NoError(t, exp.Export(&buf))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))

	events := decoded["traceEvents"].([]interface{})
	require.Len(t, events, 3) // begin, end, thread_name metadata

	begin := events[0].(map[string]interface{})
	require.Equal(t, "myapp::handler::process", begin["name"])
	require.Equal(t, "B", begin["ph"])
	require.Equal(t, 0.0, begin["ts"])

	end := events[1].(map[string]interface{})
	require.Equal(t, "E", end["ph"])
	require.Equal(t, 1000.0, end["ts"]) // 1ms later, in microseconds
}

func TestChromeTraceExporterIgnoresUnrelatedEventKinds(t *testing.T) {
	exp := NewChromeTraceExporter()
	exp.AddEvent(tracer.ResolvedEvent{Event: event.TaskEvent{EventType: event.KindTaskSpawn}})
	require.Equal(t, 0, exp.EventCount())
}

func TestChromeTraceExporterTagsDetectionMethodAsNumericArg(t *testing.T) {
	exp := NewChromeTraceExporter()
	exp.AddEvent(tracer.ResolvedEvent{
		Event: event.TaskEvent{
			PID: 1, TID: 2, TimestampNs: 1_000_000, EventType: event.KindBlockingDetected,
			WorkerID: 3, DetectionMethod: event.DetectionMarker, DurationNs: 1_000_000,
		},
		Frames: []tracer.Frame{{Function: "myapp::db::query", HasDebugInfo: true}},
	})

	var buf bytes.Buffer
	require.NoError(t, exp.Export(&buf))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))

	events := decoded["traceEvents"].([]interface{})
	begin := events[0].(map[string]interface{})
	args := begin["args"].(map[string]interface{})

	// Wire format is the numeric tag (spec.md/SPEC_FULL.md: 1=marker,
	// 2=scheduler, 3=execution, 4=sample), not the string name;
	// encoding/json decodes all untyped numbers as float64.
	require.IsType(t, float64(0), args["detection_method"])
	require.Equal(t, float64(event.DetectionMarker), args["detection_method"])
}
