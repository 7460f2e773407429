// Package event defines the fixed-layout record exchanged between the kernel
// probes and the userspace event pump. The layout mirrors the C struct
// task_event defined in bpf/hud.bpf.c byte for byte: both sides read it with
// encoding/binary, never through unsafe pointer aliasing across the
// kernel/userspace boundary, since the ring buffer only guarantees a byte
// slice.
package event

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// Kind tags the event record. The numeric values are part of the kernel ABI
// and must match the #defines in bpf/hud.bpf.c.
type Kind uint32

const (
	KindTaskSpawn Kind = iota + 1
	KindTaskPollStart
	KindTaskPollEnd
	KindBlockingStart
	KindBlockingEnd
	KindBlockingDetected
	KindCPUSample
	KindExecutionStart
	KindExecutionEnd
)

func (k Kind) String() string {
	switch k {
	case KindTaskSpawn:
		return "task_spawn"
	case KindTaskPollStart:
		return "task_poll_start"
	case KindTaskPollEnd:
		return "task_poll_end"
	case KindBlockingStart:
		return "blocking_start"
	case KindBlockingEnd:
		return "blocking_end"
	case KindBlockingDetected:
		return "blocking_detected"
	case KindCPUSample:
		return "cpu_sample"
	case KindExecutionStart:
		return "execution_start"
	case KindExecutionEnd:
		return "execution_end"
	default:
		return "unknown"
	}
}

// DetectionMethod tags how an event was produced. Values are part of the
// export wire format (SPEC_FULL.md §6): 1=marker, 2=scheduler, 3=execution,
// 4=sample.
type DetectionMethod uint8

const (
	DetectionNone      DetectionMethod = 0
	DetectionMarker    DetectionMethod = 1
	DetectionScheduler DetectionMethod = 2
	DetectionExecution DetectionMethod = 3
	DetectionSample    DetectionMethod = 4
)

func (d DetectionMethod) String() string {
	switch d {
	case DetectionMarker:
		return "marker"
	case DetectionScheduler:
		return "scheduler"
	case DetectionExecution:
		return "execution"
	case DetectionSample:
		return "sample"
	default:
		return "none"
	}
}

// NoStack is the sentinel stack identifier meaning "no stack captured",
// written by the kernel side when stack capture fails or is not attempted.
const NoStack int64 = -1

// TaskEvent is the fixed-size record emitted by the kernel probes into the
// ring buffer. Field order and widths are fixed by the kernel-side struct;
// do not reorder without updating bpf/hud.bpf.c in lockstep.
type TaskEvent struct {
	PID             uint32
	TID             uint32
	TimestampNs     uint64
	EventType       Kind
	StackID         int64
	DurationNs      uint64
	WorkerID        uint32
	CPUID           uint32
	DetectionMethod DetectionMethod
	_               [3]byte // reserved, keeps 8-byte alignment for TaskID
	TaskID          uint64
}

// Size is the encoded size of TaskEvent on the wire.
const Size = 4 + 4 + 8 + 4 + 8 + 8 + 4 + 4 + 1 + 3 + 8

// Decode parses a TaskEvent from a ring-buffer record. It returns an error
// if the buffer is shorter than Size; callers must treat a decode failure as
// an incomplete event, not a fatal one (SPEC_FULL.md §4.5).
func Decode(raw []byte) (TaskEvent, error) {
	var e TaskEvent
	if len(raw) < Size {
		return e, errors.Errorf("event: short record: got %d bytes, want at least %d", len(raw), Size)
	}

	r := bytes.NewReader(raw)
	if err := binary.Read(r, binary.LittleEndian, &e.PID); err != nil {
		return e, errors.Wrap(err, "event: decode pid")
	}
	if err := binary.Read(r, binary.LittleEndian, &e.TID); err != nil {
		return e, errors.Wrap(err, "event: decode tid")
	}
	if err := binary.Read(r, binary.LittleEndian, &e.TimestampNs); err != nil {
		return e, errors.Wrap(err, "event: decode timestamp")
	}
	if err := binary.Read(r, binary.LittleEndian, &e.EventType); err != nil {
		return e, errors.Wrap(err, "event: decode event type")
	}
	if err := binary.Read(r, binary.LittleEndian, &e.StackID); err != nil {
		return e, errors.Wrap(err, "event: decode stack id")
	}
	if err := binary.Read(r, binary.LittleEndian, &e.DurationNs); err != nil {
		return e, errors.Wrap(err, "event: decode duration")
	}
	if err := binary.Read(r, binary.LittleEndian, &e.WorkerID); err != nil {
		return e, errors.Wrap(err, "event: decode worker id")
	}
	if err := binary.Read(r, binary.LittleEndian, &e.CPUID); err != nil {
		return e, errors.Wrap(err, "event: decode cpu id")
	}
	if err := binary.Read(r, binary.LittleEndian, &e.DetectionMethod); err != nil {
		return e, errors.Wrap(err, "event: decode detection method")
	}
	var reserved [3]byte
	if err := binary.Read(r, binary.LittleEndian, &reserved); err != nil {
		return e, errors.Wrap(err, "event: decode reserved")
	}
	if err := binary.Read(r, binary.LittleEndian, &e.TaskID); err != nil {
		return e, errors.Wrap(err, "event: decode task id")
	}

	return e, nil
}

// HasStack reports whether the event carries a usable stack-dictionary
// handle.
func (e TaskEvent) HasStack() bool {
	return e.StackID != NoStack && e.StackID >= 0
}
