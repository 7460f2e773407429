// Package probe owns the kernel-facing half of the profiler: loading the
// compiled object, populating its config and worker-set maps, attaching its
// three producers, and draining the ring buffer into a byte channel. It
// knows nothing about symbolization or aggregation.
package probe

import (
	"context"
	"embed"
	"path/filepath"
	"unsafe"

	bpf "github.com/aquasecurity/libbpfgo"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	log "github.com/rs/zerolog"
)

//go:embed output/*
var probeFS embed.FS

const (
	outputPath  = "output"
	ObjectPath  = "hud.bpf.o"
	ModuleName  = "hud"
	eventsMap   = "events"
	stackMap    = "stack_traces"
	workerMap   = "worker_threads"
	configMap   = "config"

	sampleFrequency = 99 // Hz, matches SPEC_FULL.md §4.1.

	progSchedSwitch    = "sched_switch_hook"
	progOnCPUSample    = "on_cpu_sample"
	progBlockingStart  = "trace_blocking_start_hook"
	progBlockingEnd    = "trace_blocking_end_hook"

	// Config map keys, mirrored in bpf/hud.bpf.c.
	ConfigKeyThresholdNs  uint32 = 0
	ConfigKeyTargetPID    uint32 = 1
	ConfigKeyClassifyMode uint32 = 2

	EventsChBufSize       = 4096
	evtRingBufPollTimeout = 60
)

// WorkerInfo mirrors the kernel-side struct worker_info; it is written into
// the worker_threads map once discovery (pkg/workers) settles on a set.
type WorkerInfo struct {
	WorkerID uint32
	PID      uint32
	Comm     [16]byte
}

// Probe owns a loaded BPF module and its attached links.
type Probe struct {
	data []byte

	bpfMod *bpf.Module

	schedSwitchProg   *bpf.BPFProg
	onCPUSampleProg   *bpf.BPFProg
	blockingStartProg *bpf.BPFProg
	blockingEndProg   *bpf.BPFProg

	perfEventFDs []int

	EvtBuf *bpf.RingBuffer

	logger log.Logger
}

type Option func(p *Probe)

func WithLogger(logger log.Logger) Option {
	return func(p *Probe) {
		p.logger = logger
	}
}

func New(opts ...Option) *Probe {
	p := &Probe{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Probe) read(path string) ([]byte, error) {
	return probeFS.ReadFile(path)
}

// Init loads the compiled object and resolves the programs and maps this
// package knows how to drive. It does not attach anything yet.
func (p *Probe) Init(_ context.Context) error {
	p.configureBPFLogger()

	var err error
	p.data, err = p.read(filepath.Join(outputPath, ObjectPath))
	if err != nil {
		return errors.Wrap(err, "probe: read compiled object")
	}

	p.bpfMod, err = bpf.NewModuleFromBuffer(p.data, ModuleName)
	if err != nil {
		return errors.Wrap(err, "probe: load bpf module")
	}

	if err := p.bpfMod.BPFLoadObject(); err != nil {
		return errors.Wrap(err, "probe: load bpf object into kernel")
	}

	p.schedSwitchProg, err = p.bpfMod.GetProgram(progSchedSwitch)
	if err != nil {
		return errors.Wrapf(err, "probe: get program %s", progSchedSwitch)
	}

	p.onCPUSampleProg, err = p.bpfMod.GetProgram(progOnCPUSample)
	if err != nil {
		return errors.Wrapf(err, "probe: get program %s", progOnCPUSample)
	}

	// The marker programs are optional; a missing target binary won't
	// export them, so failure to resolve is not fatal here (SPEC_FULL.md
	// §4.2's fatal-vs-warning split is applied by the caller at Attach
	// time, not at load time).
	p.blockingStartProg, _ = p.bpfMod.GetProgram(progBlockingStart)
	p.blockingEndProg, _ = p.bpfMod.GetProgram(progBlockingEnd)

	return nil
}

func (p *Probe) configureBPFLogger() {
	bpf.SetLoggerCbs(bpf.Callbacks{
		Log: func(level int, msg string) {
			if level == bpf.LibbpfWarnLevel {
				p.logger.Debug().Msgf("libbpf warning: %s", msg)
			}
		},
	})
}

// SetThreshold writes the blocking-detection threshold into the config map.
func (p *Probe) SetThreshold(thresholdNs uint64) error {
	return p.updateConfig(ConfigKeyThresholdNs, thresholdNs)
}

// SetTargetPID writes the target pid into the config map, used by the
// sampling producer to filter out unrelated processes.
func (p *Probe) SetTargetPID(pid uint32) error {
	return p.updateConfig(ConfigKeyTargetPID, uint64(pid))
}

// SetClassifyMode toggles the sampler's is_worker gate. Worker discovery's
// step 3 enables it for a bounded window, before the worker set exists, so
// every thread of the target gets sampled rather than none; the caller
// disables it again once the worker set is written.
func (p *Probe) SetClassifyMode(enabled bool) error {
	var v uint64
	if enabled {
		v = 1
	}
	return p.updateConfig(ConfigKeyClassifyMode, v)
}

func (p *Probe) updateConfig(key uint32, value uint64) error {
	m, err := p.bpfMod.GetMap(configMap)
	if err != nil {
		return errors.Wrap(err, "probe: get config map")
	}
	if err := m.Update(unsafe.Pointer(&key), unsafe.Pointer(&value)); err != nil {
		return errors.Wrapf(err, "probe: update config key %d", key)
	}
	return nil
}

// SetWorkers writes the workers resolved by the discovery package into the
// kernel-side worker set. Entries not in workers that are already present in
// the map are left alone, since the map's lifetime tracks the traced
// process, not a single discovery pass.
func (p *Probe) SetWorkers(workers map[uint32]WorkerInfo) error {
	m, err := p.bpfMod.GetMap(workerMap)
	if err != nil {
		return errors.Wrap(err, "probe: get worker_threads map")
	}

	for tid, info := range workers {
		key := tid
		val := info
		if err := m.Update(unsafe.Pointer(&key), unsafe.Pointer(&val)); err != nil {
			return errors.Wrapf(err, "probe: update worker_threads for tid %d", tid)
		}
	}

	return nil
}

// AttachScheduler attaches the off-CPU dwell heuristic to sched_switch.
func (p *Probe) AttachScheduler() error {
	if _, err := p.schedSwitchProg.AttachGeneric(); err != nil {
		return errors.Wrap(err, "probe: attach sched_switch_hook")
	}
	return nil
}

// AttachSampler opens a perf_event per CPU at sampleFrequency and attaches
// the sampling producer to each. Mirrors the per-CPU PerfEventOpen loop
// production profilers in this tree use.
func (p *Probe) AttachSampler(numCPU int) error {
	for cpu := 0; cpu < numCPU; cpu++ {
		fd, err := unix.PerfEventOpen(&unix.PerfEventAttr{
			Type:   unix.PERF_TYPE_SOFTWARE,
			Config: unix.PERF_COUNT_SW_CPU_CLOCK,
			Size:   uint32(unsafe.Sizeof(unix.PerfEventAttr{})),
			Sample: sampleFrequency,
			Bits:   unix.PerfBitDisabled | unix.PerfBitFreq,
		}, -1, cpu, -1, 0)
		if err != nil {
			return errors.Wrapf(err, "probe: open perf event on cpu %d", cpu)
		}

		if _, err := p.onCPUSampleProg.AttachPerfEvent(fd); err != nil {
			return errors.Wrapf(err, "probe: attach on_cpu_sample to cpu %d", cpu)
		}
		p.perfEventFDs = append(p.perfEventFDs, fd)
	}
	return nil
}

// AttachMarkers attaches the optional uprobe markers against exePath at the
// given offsets. Failure is logged, not returned, since marker detection is
// best-effort by design (SPEC_FULL.md §4.1).
func (p *Probe) AttachMarkers(exePath string, startOffset, endOffset uint64) {
	if p.blockingStartProg != nil {
		if _, err := p.blockingStartProg.AttachUprobe(-1, exePath, startOffset); err != nil {
			p.logger.Debug().Err(err).Msg("probe: trace_blocking_start marker not available")
		}
	}
	if p.blockingEndProg != nil {
		if _, err := p.blockingEndProg.AttachUprobe(-1, exePath, endOffset); err != nil {
			p.logger.Debug().Err(err).Msg("probe: trace_blocking_end marker not available")
		}
	}
}

// InitEventBuf wires the ring buffer to a byte channel the event pump reads
// from. PollEventBuf must run from a dedicated goroutine: the cgo callback
// thread that delivers ring buffer records is locked and cannot block on a
// channel send from inside the callback itself.
func (p *Probe) InitEventBuf() (chan []byte, error) {
	events := make(chan []byte, EventsChBufSize)

	var err error
	p.EvtBuf, err = p.bpfMod.InitRingBuf(eventsMap, events)
	if err != nil {
		return nil, errors.Wrapf(err, "probe: init ring buffer %s", eventsMap)
	}

	return events, nil
}

func (p *Probe) PollEventBuf() {
	p.EvtBuf.Poll(evtRingBufPollTimeout)
}

func (p *Probe) CloseEventBuf() {
	if p.EvtBuf != nil {
		p.EvtBuf.Close()
	}
}

// Close tears down the loaded module and every attached link.
func (p *Probe) Close() {
	for _, fd := range p.perfEventFDs {
		_ = unix.Close(fd)
	}
	if p.bpfMod != nil {
		p.bpfMod.Close()
	}
}

// StackMapName names the kernel stack-trace map GetStackTrace reads, whose
// records are keyed by the StackID carried on each event.
const StackMapName = stackMap

// GetStackTrace returns the raw instruction-pointer slice for a stack
// dictionary handle.
func (p *Probe) GetStackTrace(stackID int64) ([]uint64, error) {
	m, err := p.bpfMod.GetMap(stackMap)
	if err != nil {
		return nil, errors.Wrap(err, "probe: get stack_traces map")
	}

	key := uint32(stackID)
	valueBytes, err := m.GetValue(unsafe.Pointer(&key))
	if err != nil {
		return nil, errors.Wrapf(err, "probe: lookup stack id %d", stackID)
	}

	n := len(valueBytes) / 8
	addrs := make([]uint64, 0, n)
	for i := 0; i < n; i++ {
		addr := *(*uint64)(unsafe.Pointer(&valueBytes[i*8]))
		if addr == 0 {
			break
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}
