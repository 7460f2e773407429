// Package run implements the hud run subcommand: attach to a live target,
// pump and resolve its events, aggregate blocking sites, and drive either
// the interactive dashboard or a headless status line until the session
// ends.
package run

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cong-or/hud/internal/output"
	"github.com/cong-or/hud/internal/settings"
	"github.com/cong-or/hud/pkg/cmd/common"
	"github.com/cong-or/hud/pkg/cmd/options"
	"github.com/cong-or/hud/pkg/event"
	"github.com/cong-or/hud/pkg/export"
	"github.com/cong-or/hud/pkg/healthcheck"
	"github.com/cong-or/hud/pkg/hotspot"
	"github.com/cong-or/hud/pkg/lookup"
	"github.com/cong-or/hud/pkg/probe"
	"github.com/cong-or/hud/pkg/symbolize"
	"github.com/cong-or/hud/pkg/tracer"
	"github.com/cong-or/hud/pkg/workers"
)

const CmdName = "run"

const (
	defaultThreshold   = 5 * time.Millisecond
	defaultWindow      = 0 // 0 disables the rolling window: every occurrence stays visible.
	defaultRefreshRate = time.Second
)

type Options struct {
	target       string
	pid          int
	workerPrefix string

	threshold time.Duration
	window    time.Duration

	detach   bool
	headless bool
	quiet    bool

	exportPath  string
	refreshRate time.Duration

	*options.CommonOptions
}

func NewCommand(opts *options.CommonOptions) *cobra.Command {
	o := &Options{CommonOptions: opts}
	cmd := &cobra.Command{
		Use:   CmdName,
		Short: "Attach to a running process and surface where it blocks its async runtime",
		Long: fmt.Sprintf(`
%s attaches eBPF probes to a running Tokio-style async process, locates
blocking operations on its worker threads through marker, scheduler, and
sampling detection, and renders the result as a live ranked dashboard.
`, settings.CmdName),
		DisableAutoGenTag: true,
		RunE:              o.Run,
	}

	cmd.Flags().StringVarP(&o.target, "target", "t", "", "Path to the target executable")
	cmd.Flags().IntVar(&o.pid, "pid", -1, "Attach to this PID instead of resolving --target by name")
	cmd.Flags().StringVar(&o.workerPrefix, "worker-prefix", "", "Explicit worker thread-name prefix, bypassing auto-discovery")

	cmd.Flags().DurationVar(&o.threshold, "threshold", defaultThreshold, "Minimum off-CPU dwell time counted as blocking")
	cmd.Flags().DurationVar(&o.window, "window", defaultWindow, "Rolling window for hotspot visibility (0 disables windowing)")

	cmd.Flags().BoolVarP(&o.detach, "detach", "d", false, fmt.Sprintf("Run %s as a background daemon", settings.CmdName))
	cmd.Flags().BoolVar(&o.headless, "headless", false, "Print a status line instead of the interactive dashboard")
	cmd.Flags().BoolVar(&o.quiet, "quiet", false, "Suppress non-fatal preflight warnings")

	cmd.Flags().StringVar(&o.exportPath, "export", "", "Write a Chrome Trace Event JSON file here on exit")
	cmd.Flags().DurationVar(&o.refreshRate, "refresh-rate", defaultRefreshRate, "Headless status refresh interval")

	cmd.MarkFlagsOneRequired("target", "pid")

	return cmd
}

func (o *Options) Run(cmd *cobra.Command, _ []string) error {
	if o.detach {
		return o.daemonize(cmd)
	}

	if err := os.WriteFile(settings.PidFile, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		o.Logger.Warn().Err(err).Msg("run: failed to write pid file")
	}
	defer os.Remove(settings.PidFile)

	level, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return errors.Wrap(err, "run: read log-level flag")
	}
	o.Logger = o.Logger.Level(options.ParseLevel(level)).With().Str("component", "run").Logger()

	target, err := o.resolveTarget()
	if err != nil {
		return err
	}

	if err := probe.RunPreflightChecks(target.ExePath, o.quiet, o.Logger); err != nil {
		return errors.Wrap(err, "run: preflight checks failed")
	}

	hc := healthcheck.NewReadinessServer(settings.SocketPath, o.Logger)
	if err := hc.InitializeListener(o.Ctx); err != nil {
		o.Logger.Warn().Err(err).Msg("run: readiness socket unavailable, wait subcommand will time out")
	}
	defer hc.ShutdownListener()

	sess, cleanup, err := o.attach(target)
	if err != nil {
		return err
	}

	hc.NotifyReadiness()

	exporter := export.NewChromeTraceExporter()
	sess.group.Go(func() error {
		sess.pump(exporter)
		return nil
	})

	if o.headless {
		output.RunHeadless(o.Ctx, os.Stdout, sess, o.refreshRate)
	} else {
		if err := output.RunLive(o.Ctx, os.Stdout, os.Stdin, sess, 100); err != nil {
			o.Logger.Warn().Err(err).Msg("run: dashboard exited with error")
		}
	}

	// The renderer (above) has exited at its next frame boundary; detach
	// before joining so the pump and poll goroutines, blocked on the ring
	// buffer, have something to wake them (SPEC_FULL.md §5).
	cleanup()
	if err := sess.group.Wait(); err != nil && !errors.Is(err, tracer.ErrTargetExited) {
		o.Logger.Warn().Err(err).Msg("run: pump goroutine exited with error")
	}

	return o.exportOnExit(exporter)
}

func (o *Options) exportOnExit(exporter *export.ChromeTraceExporter) error {
	if o.exportPath == "" || exporter.EventCount() == 0 {
		return nil
	}

	f, err := os.Create(o.exportPath)
	if err != nil {
		return errors.Wrapf(err, "run: create export file %s", o.exportPath)
	}
	defer f.Close()

	if err := exporter.Export(f); err != nil {
		return errors.Wrap(err, "run: write export file")
	}
	o.Logger.Info().Str("path", o.exportPath).Int("events", exporter.EventCount()).Msg("run: wrote trace export")
	return nil
}

func (o *Options) resolveTarget() (lookup.ProcessInfo, error) {
	if o.pid > 0 {
		exe, err := lookup.ResolveExePath(o.pid)
		if err != nil {
			return lookup.ProcessInfo{}, err
		}
		return lookup.ProcessInfo{PID: o.pid, ExePath: exe}, nil
	}
	return lookup.FindByName(o.target)
}

// session owns every runtime component the dashboard needs a read-only view
// of, and implements internal/output.Snapshotter. group joins the pump-side
// goroutines (ring-buffer poll, event drain, aggregator feed) once the
// renderer exits (SPEC_FULL.md §5).
type session struct {
	aggregator *hotspot.Aggregator
	tracer     *tracer.Tracer
	symbolizer *symbolize.Symbolizer
	discovered []workers.Worker
	startedAt  time.Time
	group      *errgroup.Group
}

func (s *session) pump(exporter *export.ChromeTraceExporter) {
	for re := range s.tracer.Events() {
		exporter.AddEvent(re)
		if re.Event.EventType == event.KindBlockingDetected {
			s.aggregator.Record(re.Frames, re.Event.TimestampNs, re.Event.DurationNs, re.Event.WorkerID)
		}
	}
}

func (s *session) Hotspots(nowNs uint64) []hotspot.Snapshot { return s.aggregator.Top(nowNs) }

func (s *session) Status() output.StatusInfo {
	stats := s.tracer.StatsSnapshot()
	return output.StatusInfo{
		Seen:               stats.Seen,
		Dropped:            stats.Dropped,
		WorkerCount:        len(s.discovered),
		AggregatorSize:     len(s.aggregator.Top(s.NowNs())),
		DebugInfoFraction:  s.symbolizer.DebugInfoFraction(),
		Live:               true,
		DurationSec:        time.Since(s.startedAt).Seconds(),
	}
}

func (s *session) NowNs() uint64 { return uint64(time.Now().UnixNano()) }

func (s *session) Workers() []uint32 {
	ids := make([]uint32, len(s.discovered))
	for i, w := range s.discovered {
		ids[i] = w.WorkerID
	}
	return ids
}

// attach loads the probe, discovers workers, and wires the event pump. The
// returned cleanup function must run once the session ends, regardless of
// how it ended.
//
// The sampler needed by worker discovery's step 3 (stack-based
// classification) shares the same ring buffer and perf-event attachment the
// session uses for its whole lifetime, so both the memory maps/symbolizer
// and the sampling probe must exist before discovery runs, ahead of
// SPEC_FULL.md §4.2's listed step order (discovery, then attach sampler) —
// the kernel-side classify_mode config key reuses the same attachment for
// both the bounded classification window and ongoing sampling.
func (o *Options) attach(target lookup.ProcessInfo) (*session, func(), error) {
	p := probe.New(probe.WithLogger(o.Logger))
	if err := p.Init(o.Ctx); err != nil {
		return nil, func() {}, errors.Wrap(err, "run: init probe")
	}

	cleanup := func() { p.Close() }

	if err := p.SetThreshold(uint64(o.threshold.Nanoseconds())); err != nil {
		cleanup()
		return nil, func() {}, err
	}
	if err := p.SetTargetPID(uint32(target.PID)); err != nil {
		cleanup()
		return nil, func() {}, err
	}

	regions, err := symbolize.ParseMemoryMaps(target.PID, target.ExePath)
	if err != nil {
		cleanup()
		return nil, func() {}, errors.Wrap(err, "run: parse memory maps")
	}

	symbolizer, err := symbolize.New(target.ExePath)
	if err != nil {
		cleanup()
		return nil, func() {}, errors.Wrap(err, "run: open symbolizer")
	}

	events, err := p.InitEventBuf()
	if err != nil {
		cleanup()
		return nil, func() {}, errors.Wrap(err, "run: init event buffer")
	}

	g, _ := errgroup.WithContext(o.Ctx)
	g.Go(func() error {
		p.PollEventBuf()
		return nil
	})

	if err := p.AttachSampler(runtime.NumCPU()); err != nil {
		cleanup()
		return nil, func() {}, errors.Wrap(err, "run: attach sampler")
	}

	sampler := tracer.NewStackSampler(p, symbolizer, regions, events, p.SetClassifyMode)
	discovered, err := workers.Discover(o.Ctx, target.PID, o.workerPrefix, sampler, o.Logger)
	if err != nil {
		cleanup()
		return nil, func() {}, errors.Wrap(err, "run: discover workers")
	}

	workerInfo := make(map[uint32]probe.WorkerInfo, len(discovered))
	for _, w := range discovered {
		var info probe.WorkerInfo
		info.WorkerID = w.WorkerID
		info.PID = uint32(target.PID)
		copy(info.Comm[:], []byte(w.Comm))
		workerInfo[w.TID] = info
	}
	if err := p.SetWorkers(workerInfo); err != nil {
		cleanup()
		return nil, func() {}, errors.Wrap(err, "run: populate worker map")
	}

	if err := p.AttachScheduler(); err != nil {
		cleanup()
		return nil, func() {}, errors.Wrap(err, "run: attach scheduler hook")
	}
	if startOff, endOff, ok := probe.ResolveMarkerOffsets(target.ExePath); ok {
		p.AttachMarkers(target.ExePath, startOff, endOff)
	}

	t := tracer.New(p, symbolizer, regions, target.PID, tracer.WithLogger(o.Logger))
	g.Go(func() error {
		return t.Run(o.Ctx, events)
	})

	sess := &session{
		aggregator: hotspot.New(o.window),
		tracer:     t,
		symbolizer: symbolizer,
		discovered: discovered,
		startedAt:  time.Now(),
		group:      g,
	}

	fullCleanup := func() {
		p.CloseEventBuf()
		symbolizer.Close()
		cleanup()
	}

	return sess, fullCleanup, nil
}

func (o *Options) daemonize(cmd *cobra.Command) error {
	if common.IsDaemonRunning() {
		fmt.Println("daemon already running")
		return nil
	}

	args := []string{CmdName}
	if o.target != "" {
		args = append(args, "--target="+o.target)
	}
	if o.pid > 0 {
		args = append(args, "--pid="+strconv.Itoa(o.pid))
	}
	args = append(args, "--threshold="+o.threshold.String())
	args = append(args, "--window="+o.window.String())
	args = append(args, "--headless=true")
	if o.exportPath != "" {
		args = append(args, "--export="+o.exportPath)
	}

	daemon := exec.Command(os.Args[0], args...)
	daemon.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	f, err := os.OpenFile(settings.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		o.Logger.Error().Err(err).Msg("run: failed to open log file")
		return err
	}
	daemon.Stdout = f
	daemon.Stderr = f

	if err := daemon.Start(); err != nil {
		o.Logger.Error().Err(err).Msgf("run: failed to start %s", settings.CmdName)
		return err
	}

	if err := os.WriteFile(settings.PidFile, []byte(strconv.Itoa(daemon.Process.Pid)), 0644); err != nil {
		o.Logger.Error().Err(err).Msg("run: failed to write pid file")
		return err
	}

	return nil
}
