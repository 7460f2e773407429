// Package output renders the live/replay dashboard (SPEC_FULL.md §4.7): a
// terminal status line plus a hotspot list, with the Analysis/DrillDown/
// Search/WorkerFilter view machine in viewmode.go. There is no terminal UI
// library anywhere in the retrieval pack, so rendering is plain ANSI text
// built with strings.Builder and printed through the same x/term-sized
// status-line approach the teacher uses in output.go/status.go, rather than
// a grid-layout widget toolkit.
package output

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cong-or/hud/pkg/hotspot"
)

// StatusInfo is the status line's content (SPEC_FULL.md §4.7): total
// events seen, dropped events, discovered worker count, aggregator size,
// debug-info fraction, and a live/replay indicator.
type StatusInfo struct {
	Seen              uint64
	Dropped           uint64
	WorkerCount       int
	AggregatorSize    int
	DebugInfoFraction float64
	Live              bool
	DurationSec       float64
}

// RenderFrame renders one dashboard frame as plain text with ANSI color
// codes. width bounds rule lines; 0 falls back to 80.
func RenderFrame(state *State, snapshots []hotspot.Snapshot, status StatusInfo, width int) string {
	if width <= 0 {
		width = 80
	}

	var b strings.Builder

	writeHeader(&b, status, width)
	b.WriteString("\n")

	switch state.Mode {
	case ViewDrillDown:
		writeDrillDown(&b, visibleSnapshots(state, snapshots), state.HotspotCursor, width)
	default:
		writeHotspotList(&b, visibleSnapshots(state, snapshots), state.HotspotCursor, width)
	}

	switch state.Mode {
	case ViewSearch:
		b.WriteString("\n")
		writeSearchOverlay(&b, state, width)
	case ViewWorkerFilter:
		b.WriteString("\n")
		writeWorkerFilterOverlay(&b, state, width)
	}

	b.WriteString("\n")
	writeStatusBar(&b, state)

	return b.String()
}

func writeHeader(b *strings.Builder, status StatusInfo, width int) {
	indicator := colorize(colorRed, "● LIVE")
	if !status.Live {
		indicator = colorize(colorDim, "◆ REPLAY")
	}

	fmt.Fprintf(b, "%s%s  duration %.1fs  events %d  dropped %d  workers %d  sites %d  debug-info %.0f%%  %s\n",
		colorize(colorGreen+ansiBold, "hud"), colorize(colorDim, " v1"),
		status.DurationSec, status.Seen, status.Dropped, status.WorkerCount,
		status.AggregatorSize, status.DebugInfoFraction*100, indicator)
	b.WriteString(strings.Repeat("─", width))
	b.WriteString("\n")
}

func visibleSnapshots(state *State, snapshots []hotspot.Snapshot) []hotspot.Snapshot {
	filtered := make([]hotspot.Snapshot, 0, len(snapshots))
	for _, snap := range snapshots {
		if state.FilterFunctionSub != "" && !matchesFilter(snap, state.FilterFunctionSub) {
			continue
		}
		if !hasSelectedWorker(state, snap) {
			continue
		}
		filtered = append(filtered, snap)
	}
	return filtered
}

func matchesFilter(snap hotspot.Snapshot, query string) bool {
	if len(snap.Frames) == 0 {
		return false
	}
	return strings.Contains(strings.ToLower(snap.Frames[0].Function), strings.ToLower(query))
}

func hasSelectedWorker(state *State, snap hotspot.Snapshot) bool {
	if len(state.SelectedWorkers) == 0 {
		return true
	}
	for w := range snap.Workers {
		if state.SelectedWorkers[w] {
			return true
		}
	}
	return false
}

func writeHotspotList(b *strings.Builder, snapshots []hotspot.Snapshot, cursor int, width int) {
	fmt.Fprintf(b, "%s\n", colorize(ansiBold, "BLOCKING SITES"))
	if len(snapshots) == 0 {
		b.WriteString(colorize(colorDim, "  (none yet)\n"))
		return
	}

	for i, snap := range snapshots {
		marker := "  "
		if i == cursor {
			marker = "▶ "
		}
		name := siteName(snap)
		fmt.Fprintf(b, "%s%s %5d hits  %10.2fms  %s\n",
			marker, colorize(severityColor(snap.TotalTimeNs), fmt.Sprintf("%-40s", truncate(name, 40))),
			snap.HitCount, float64(snap.TotalTimeNs)/1e6, workerSummary(snap.Workers))
	}
}

func siteName(snap hotspot.Snapshot) string {
	if len(snap.Frames) == 0 || !snap.Frames[0].HasDebugInfo {
		return fmt.Sprintf("0x%x", snap.Key)
	}
	return snap.Frames[0].Function
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func workerSummary(workers map[uint32]uint64) string {
	ids := make([]uint32, 0, len(workers))
	for w := range workers {
		ids = append(ids, w)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	parts := make([]string, 0, len(ids))
	for _, w := range ids {
		parts = append(parts, fmt.Sprintf("w%d:%d", w, workers[w]))
	}
	return colorize(colorDim, strings.Join(parts, " "))
}

func writeDrillDown(b *strings.Builder, snapshots []hotspot.Snapshot, cursor int, width int) {
	fmt.Fprintf(b, "%s\n", colorize(ansiBold, "SITE DETAIL"))
	b.WriteString(strings.Repeat("─", width))
	b.WriteString("\n")

	if cursor < 0 || cursor >= len(snapshots) {
		b.WriteString(colorize(colorDim, "  (no site selected)\n"))
		return
	}

	snap := snapshots[cursor]
	fmt.Fprintf(b, "  name:  %s\n", colorize(severityColor(snap.TotalTimeNs), siteName(snap)))
	fmt.Fprintf(b, "  hits:  %d\n", snap.HitCount)
	fmt.Fprintf(b, "  total: %.2fms\n", float64(snap.TotalTimeNs)/1e6)
	if len(snap.Frames) > 0 && snap.Frames[0].File != "" {
		fmt.Fprintf(b, "  at:    %s:%d\n", snap.Frames[0].File, snap.Frames[0].Line)
	} else {
		b.WriteString(colorize(colorDim, "  at:    (no debug symbols)\n"))
	}

	b.WriteString("\n  worker distribution:\n")
	ids := make([]uint32, 0, len(snap.Workers))
	for w := range snap.Workers {
		ids = append(ids, w)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, w := range ids {
		count := snap.Workers[w]
		pct := float64(count) / float64(snap.HitCount) * 100
		barWidth := 30
		filled := int(pct / 100 * float64(barWidth))
		bar := strings.Repeat("▓", filled) + strings.Repeat("░", barWidth-filled)
		fmt.Fprintf(b, "    worker %-2d %s %3.0f%% (%d)\n", w, colorize(colorGreen, bar), pct, count)
	}

	if len(snap.Frames) > 1 {
		b.WriteString("\n  call stack:\n")
		for _, f := range snap.Frames {
			if f.HasDebugInfo {
				fmt.Fprintf(b, "    %s\n", f.Function)
			} else {
				fmt.Fprintf(b, "    0x%x\n", f.Addr)
			}
		}
	}
}

func writeSearchOverlay(b *strings.Builder, state *State, width int) {
	fmt.Fprintf(b, "%s\n", colorize(ansiBold, "FILTER FUNCTIONS"))
	fmt.Fprintf(b, "  search: %s%s\n", state.SearchQuery, colorize(colorAmber, "_"))
}

func writeWorkerFilterOverlay(b *strings.Builder, state *State, width int) {
	fmt.Fprintf(b, "%s (%d selected)\n", colorize(ansiBold, "SELECT WORKERS"), countSelected(state))
	for i, w := range state.AllWorkers {
		cursor := "  "
		if i == state.WorkerCursor {
			cursor = "▶ "
		}
		box := "[ ]"
		if state.SelectedWorkers[w] {
			box = "[x]"
		}
		fmt.Fprintf(b, "%s%s worker %d\n", cursor, box, w)
	}
}

func countSelected(state *State) int {
	n := 0
	for _, selected := range state.SelectedWorkers {
		if selected {
			n++
		}
	}
	return n
}

func writeStatusBar(b *strings.Builder, state *State) {
	switch state.Mode {
	case ViewAnalysis:
		b.WriteString("[Q] quit  [↑↓] nav  [Enter] detail  [/] search  [W] workers  [C] clear  ")
		b.WriteString(colorize(colorGreen, state.Mode.String()))
	case ViewDrillDown:
		b.WriteString("[Esc/Q] back  ")
		b.WriteString(colorize(colorAmber, "mode: "+state.Mode.String()))
	case ViewSearch:
		b.WriteString("[Enter] apply  [Esc] cancel  [Backspace] delete  ")
		b.WriteString(colorize(colorAmber, "mode: "+state.Mode.String()))
	case ViewWorkerFilter:
		b.WriteString("[↑↓] nav  [Space] toggle  [A] all  [N] none  [Enter] apply  ")
		b.WriteString(colorize(colorAmber, "mode: "+state.Mode.String()))
	}
	b.WriteString("\n")
}
