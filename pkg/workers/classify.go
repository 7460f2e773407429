package workers

import "strings"

// ThreadClass is the stack-based classification assigned to a thread during
// step 3 of discovery. Worker always outranks BlockingPool, which outranks
// Unknown (SPEC_FULL.md §4.3).
type ThreadClass int

const (
	ClassUnknown ThreadClass = iota
	ClassBlockingPool
	ClassWorker
)

// workerSignature and blockingPoolSignature are the runtime frame patterns
// that identify, respectively, the scheduler's worker loop and the
// spawn_blocking thread pool. Stored here rather than hardcoded inline since
// the spec allows them to be configuration-driven.
var (
	workerSignature       = "scheduler::multi_thread::worker"
	blockingPoolSignature = "tokio::runtime::blocking::pool::Inner::run"
)

// ClassifyFrames inspects a resolved stack (outermost to innermost, or any
// order — the signatures are order-independent) and returns the strongest
// classification found.
func ClassifyFrames(functionNames []string) ThreadClass {
	hasBlockingPool := false

	for _, name := range functionNames {
		if strings.Contains(name, workerSignature) {
			return ClassWorker
		}
		if strings.HasPrefix(name, blockingPoolSignature) {
			hasBlockingPool = true
		}
	}

	if hasBlockingPool {
		return ClassBlockingPool
	}
	return ClassUnknown
}

// Upgrade applies the merge-upgrade rule: Worker beats anything, BlockingPool
// beats Unknown, and nothing ever downgrades an existing classification.
func Upgrade(existing, observed ThreadClass) ThreadClass {
	if observed > existing {
		return observed
	}
	return existing
}
