package event_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cong-or/hud/pkg/event"
)

func encodeFixture(t *testing.T, e event.TaskEvent) []byte {
	t.Helper()

	buf := new(bytes.Buffer)
	require.NoError(t, binary.Write(buf, binary.LittleEndian, e.PID))
	require.NoError(t, binary.Write(buf, binary.LittleEndian, e.TID))
	require.NoError(t, binary.Write(buf, binary.LittleEndian, e.TimestampNs))
	require.NoError(t, binary.Write(buf, binary.LittleEndian, e.EventType))
	require.NoError(t, binary.Write(buf, binary.LittleEndian, e.StackID))
	require.NoError(t, binary.Write(buf, binary.LittleEndian, e.DurationNs))
	require.NoError(t, binary.Write(buf, binary.LittleEndian, e.WorkerID))
	require.NoError(t, binary.Write(buf, binary.LittleEndian, e.CPUID))
	require.NoError(t, binary.Write(buf, binary.LittleEndian, e.DetectionMethod))
	require.NoError(t, binary.Write(buf, binary.LittleEndian, [3]byte{}))
	require.NoError(t, binary.Write(buf, binary.LittleEndian, e.TaskID))

	return buf.Bytes()
}

func TestDecodeRoundTrip(t *testing.T) {
	want := event.TaskEvent{
		PID:             1234,
		TID:             5678,
		TimestampNs:     111222333,
		EventType:       event.KindBlockingDetected,
		StackID:         42,
		DurationNs:      9_000_000,
		WorkerID:        3,
		CPUID:           1,
		DetectionMethod: event.DetectionScheduler,
		TaskID:          99,
	}

	got, err := event.Decode(encodeFixture(t, want))
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestDecodeShortRecordIsIncompleteNotFatal(t *testing.T) {
	_, err := event.Decode([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestHasStack(t *testing.T) {
	tests := []struct {
		name    string
		stackID int64
		want    bool
	}{
		{"no stack sentinel", event.NoStack, false},
		{"negative non-sentinel treated as absent", -2, false},
		{"valid handle", 0, true},
		{"positive handle", 17, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := event.TaskEvent{StackID: tt.stackID}
			require.Equal(t, tt.want, e.HasStack())
		})
	}
}

func TestDetectionMethodString(t *testing.T) {
	require.Equal(t, "marker", event.DetectionMarker.String())
	require.Equal(t, "scheduler", event.DetectionScheduler.String())
	require.Equal(t, "execution", event.DetectionExecution.String())
	require.Equal(t, "sample", event.DetectionSample.String())
	require.Equal(t, "none", event.DetectionNone.String())
}

func TestKindString(t *testing.T) {
	require.Equal(t, "blocking_detected", event.KindBlockingDetected.String())
	require.Equal(t, "cpu_sample", event.KindCPUSample.String())
	require.Equal(t, "unknown", event.Kind(0).String())
}
