package probe

import "github.com/pkg/errors"

var (
	ErrKernelTooOld      = errors.New("kernel too old for BPF ring buffers")
	ErrMissingCapability = errors.New("missing CAP_BPF/CAP_PERFMON capability")
	ErrTargetNotFound    = errors.New("target binary not found")
	ErrNoDebugInfo       = errors.New("target binary has no debug symbols")
)
