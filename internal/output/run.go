package output

import (
	"bufio"
	"context"
	"io"
	"os"
	"strconv"
	"time"

	"golang.org/x/term"

	"github.com/cong-or/hud/pkg/hotspot"
)

// frameInterval caps the dashboard at the 60-FPS render budget
// (SPEC_FULL.md §4.7).
const frameInterval = time.Second / 60

// Snapshotter supplies one dashboard frame's inputs. Implemented by the
// command that owns the aggregator and tracer so this package stays free
// of any dependency on the event pump's concrete types.
type Snapshotter interface {
	Hotspots(nowNs uint64) []hotspot.Snapshot
	Status() StatusInfo
	NowNs() uint64
	Workers() []uint32
}

// RunLive drives the interactive dashboard: keyboard input updates the
// view-state machine, a 60-FPS ticker redraws, until the state machine
// quits or ctx is canceled. Grounded on the teacher's StatusBar
// ticker-and-select shape (internal/output/status.go), generalized from a
// single printf callback to the full state machine above.
func RunLive(ctx context.Context, w io.Writer, stdin io.Reader, snap Snapshotter, width int) error {
	state := NewState(snap.Workers())

	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		raw, err := EnterRaw(int(f.Fd()))
		if err == nil {
			defer raw.Close()
		}
	}

	keys := make(chan Key)
	errs := make(chan error, 1)
	go func() {
		r := bufio.NewReader(stdin)
		for {
			k, err := ReadKey(r)
			if err != nil {
				errs <- err
				return
			}
			select {
			case keys <- k:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-errs:
			return err

		case k := <-keys:
			state.HandleKey(k)
			if state.ShouldQuit {
				return nil
			}

		case <-ticker.C:
			writeFrame(w, state, snap, width)
		}
	}
}

// RunHeadless drives no terminal interface at all: it ticks a status print
// at a coarser interval until ctx is canceled, matching the spec's
// headless-mode requirement for non-terminal output.
func RunHeadless(ctx context.Context, w io.Writer, snap Snapshotter, refreshRate time.Duration) {
	StatusBar(ctx, refreshRate, func() {
		PrintRight(PrettyHeadlessStatus(snap.Status()))
	})
}

func writeFrame(w io.Writer, state *State, snap Snapshotter, width int) {
	frame := RenderFrame(state, snap.Hotspots(snap.NowNs()), snap.Status(), width)
	_, _ = io.WriteString(w, "\x1b[2J\x1b[H") // clear screen, home cursor
	_, _ = io.WriteString(w, frame)
}

// PrettyHeadlessStatus renders one status-line update for non-interactive
// output, in the teacher's status-bar style.
func PrettyHeadlessStatus(s StatusInfo) string {
	indicator := "LIVE"
	if !s.Live {
		indicator = "REPLAY"
	}
	return "events " + strconv.FormatUint(s.Seen, 10) + " dropped " + strconv.FormatUint(s.Dropped, 10) +
		" workers " + strconv.Itoa(s.WorkerCount) + " sites " + strconv.Itoa(s.AggregatorSize) +
		" [" + indicator + "]"
}
