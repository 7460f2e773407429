package tracer

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cong-or/hud/pkg/event"
)

func encodeEvent(t *testing.T, e event.TaskEvent) []byte {
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

type fakeResolver struct{}

func (fakeResolver) GetStackTrace(int64) ([]uint64, error) { return nil, nil }

func TestRunStopsOnContextCancel(t *testing.T) {
	tr := New(fakeResolver{}, nil, nil, 0)
	raw := make(chan []byte)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := tr.Run(ctx, raw)
	require.NoError(t, err)
}

func TestHandleRawDropsIncompleteEvent(t *testing.T) {
	tr := New(fakeResolver{}, nil, nil, 0)
	tr.handleRaw([]byte{1, 2, 3})

	require.Equal(t, uint64(1), tr.StatsSnapshot().Seen)
	require.Equal(t, uint64(0), tr.StatsSnapshot().Dropped)
}

func TestHandleRawPublishesCompleteEventWithoutStack(t *testing.T) {
	tr := New(fakeResolver{}, nil, nil, 0)
	raw := encodeEvent(t, event.TaskEvent{
		PID: 1, TID: 2, StackID: event.NoStack, EventType: event.KindCPUSample,
	})

	tr.handleRaw(raw)

	select {
	case got := <-tr.Events():
		require.Equal(t, uint32(1), got.Event.PID)
		require.Nil(t, got.Frames)
	case <-time.After(time.Second):
		t.Fatal("expected event on output channel")
	}
}

func TestHandleRawDropsWhenOutputFull(t *testing.T) {
	tr := New(fakeResolver{}, nil, nil, 0, WithOutputBufferSize(1))
	raw := encodeEvent(t, event.TaskEvent{StackID: event.NoStack})

	tr.handleRaw(raw) // fills the buffer of size 1
	tr.handleRaw(raw) // should drop

	require.Equal(t, uint64(1), tr.StatsSnapshot().Dropped)
}

func TestBlockingStartEndSynthesizesBlockingDetected(t *testing.T) {
	tr := New(fakeResolver{}, nil, nil, 0)

	start := encodeEvent(t, event.TaskEvent{
		TID: 7, StackID: event.NoStack, EventType: event.KindBlockingStart, TimestampNs: 1000,
	})
	end := encodeEvent(t, event.TaskEvent{
		TID: 7, StackID: event.NoStack, EventType: event.KindBlockingEnd, TimestampNs: 1500,
	})

	tr.handleRaw(start)
	select {
	case <-tr.Events():
		t.Fatal("blocking_start must not be forwarded on its own")
	default:
	}

	tr.handleRaw(end)

	select {
	case got := <-tr.Events():
		require.Equal(t, event.KindBlockingDetected, got.Event.EventType)
		require.Equal(t, uint64(500), got.Event.DurationNs)
		require.Equal(t, uint64(1000), got.Event.TimestampNs)
		require.Equal(t, event.DetectionMarker, got.Event.DetectionMethod)
	case <-time.After(time.Second):
		t.Fatal("expected a synthesized blocking_detected event")
	}
}

func TestBlockingEndWithoutStartIsDropped(t *testing.T) {
	tr := New(fakeResolver{}, nil, nil, 0)

	end := encodeEvent(t, event.TaskEvent{
		TID: 9, StackID: event.NoStack, EventType: event.KindBlockingEnd,
	})
	tr.handleRaw(end)

	select {
	case got := <-tr.Events():
		t.Fatalf("expected no event, got %v", got)
	default:
	}
}
