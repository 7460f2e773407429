package output

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cong-or/hud/pkg/hotspot"
	"github.com/cong-or/hud/pkg/tracer"
)

func snap(fn string, totalNs, hits uint64, workers map[uint32]uint64) hotspot.Snapshot {
	return hotspot.Snapshot{
		Frames:      []tracer.Frame{{Function: fn, HasDebugInfo: true}},
		TotalTimeNs: totalNs,
		HitCount:    hits,
		Workers:     workers,
	}
}

func TestSeverityColorThresholds(t *testing.T) {
	require.Equal(t, colorGreen, severityColor(5_000_000))
	require.Equal(t, colorAmber, severityColor(20_000_000))
	require.Equal(t, colorRed, severityColor(60_000_000))
}

func TestRenderFrameListsHotspots(t *testing.T) {
	state := NewState([]uint32{0, 1})
	snapshots := []hotspot.Snapshot{
		snap("slow_fn", 60_000_000, 3, map[uint32]uint64{0: 3}),
	}
	frame := RenderFrame(state, snapshots, StatusInfo{Live: true, WorkerCount: 2}, 80)

	require.Contains(t, frame, "slow_fn")
	require.Contains(t, frame, "LIVE")
}

func TestRenderFrameFiltersByWorkerSelection(t *testing.T) {
	state := NewState([]uint32{0, 1})
	state.SelectedWorkers[1] = false

	snapshots := []hotspot.Snapshot{
		snap("only_worker_one", 10_000_000, 1, map[uint32]uint64{1: 1}),
		snap("only_worker_zero", 10_000_000, 1, map[uint32]uint64{0: 1}),
	}
	frame := RenderFrame(state, snapshots, StatusInfo{}, 80)

	require.NotContains(t, frame, "only_worker_one")
	require.Contains(t, frame, "only_worker_zero")
}

func TestRenderFrameAppliesSearchFilter(t *testing.T) {
	state := NewState([]uint32{0})
	state.FilterFunctionSub = "lock"

	snapshots := []hotspot.Snapshot{
		snap("acquire_lock", 10_000_000, 1, map[uint32]uint64{0: 1}),
		snap("read_file", 10_000_000, 1, map[uint32]uint64{0: 1}),
	}
	frame := RenderFrame(state, snapshots, StatusInfo{}, 80)

	require.Contains(t, frame, "acquire_lock")
	require.NotContains(t, frame, "read_file")
}

func TestRenderFrameDrillDownShowsWorkerDistribution(t *testing.T) {
	state := NewState([]uint32{0, 1})
	state.Mode = ViewDrillDown
	state.HotspotCursor = 0

	snapshots := []hotspot.Snapshot{
		snap("blocked_fn", 100_000_000, 4, map[uint32]uint64{0: 3, 1: 1}),
	}
	frame := RenderFrame(state, snapshots, StatusInfo{}, 80)

	require.Contains(t, frame, "SITE DETAIL")
	require.Contains(t, frame, "worker distribution")
	require.Contains(t, frame, "worker 0")
	require.Contains(t, frame, "worker 1")
}

func TestWorkerFilterOverlayListsCheckboxes(t *testing.T) {
	state := NewState([]uint32{0, 1})
	state.Mode = ViewWorkerFilter

	frame := RenderFrame(state, nil, StatusInfo{}, 80)
	require.True(t, strings.Contains(frame, "[x]"))
}
