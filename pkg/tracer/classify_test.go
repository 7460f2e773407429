package tracer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cong-or/hud/pkg/event"
)

func TestSampleClassifyTogglesModeAndDrainsUntilDeadline(t *testing.T) {
	var calls []bool
	setMode := func(enabled bool) error {
		calls = append(calls, enabled)
		return nil
	}

	raw := make(chan []byte, 1)
	sampler := NewStackSampler(fakeResolver{}, nil, nil, raw, setMode)

	classes, err := sampler.SampleClassify(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)
	require.Empty(t, classes)
	require.Equal(t, []bool{true, false}, calls)
}

func TestSampleClassifyIgnoresNonCPUSampleEvents(t *testing.T) {
	setMode := func(bool) error { return nil }
	raw := make(chan []byte, 1)
	sampler := NewStackSampler(fakeResolver{}, nil, nil, raw, setMode)

	raw <- encodeEvent(t, event.TaskEvent{
		TID: 3, StackID: event.NoStack, EventType: event.KindTaskSpawn,
	})

	classes, err := sampler.SampleClassify(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)
	require.Empty(t, classes)
}

func TestSampleClassifyStopsOnContextCancel(t *testing.T) {
	setMode := func(bool) error { return nil }
	raw := make(chan []byte)
	sampler := NewStackSampler(fakeResolver{}, nil, nil, raw, setMode)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	classes, err := sampler.SampleClassify(ctx, time.Second)
	require.Error(t, err)
	require.Empty(t, classes)
}
