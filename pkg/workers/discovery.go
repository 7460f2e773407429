// Package workers implements the four-step worker-thread discovery chain:
// explicit prefix, default prefix, stack-based classification, and largest
// thread-group fallback. The result is resolved once per session and never
// revisited (SPEC_FULL.md §4.3, Open Question (ii)).
package workers

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/procfs"
	log "github.com/rs/zerolog"
)

// DefaultPrefixes are the canonical Tokio worker thread-name prefixes tried
// in order when no explicit prefix is configured.
var DefaultPrefixes = []string{"tokio-runtime-w", "tokio-runtime"}

// Worker is a discovered thread, assigned a sequential, session-stable ID.
type Worker struct {
	WorkerID uint32
	TID      uint32
	Comm     string
}

// Thread is a raw /proc/<pid>/task entry.
type Thread struct {
	TID  uint32
	Comm string
}

var ErrNoThreads = errors.New("workers: target has no threads")

// ListThreads enumerates every thread of pid via procfs.
func ListThreads(pid int) ([]Thread, error) {
	procs, err := procfs.AllThreads(pid)
	if err != nil {
		return nil, errors.Wrapf(err, "workers: list threads for pid %d", pid)
	}

	threads := make([]Thread, 0, len(procs))
	for _, p := range procs {
		comm, err := p.Comm()
		if err != nil {
			continue
		}
		threads = append(threads, Thread{TID: uint32(p.PID), Comm: comm})
	}

	if len(threads) == 0 {
		return nil, ErrNoThreads
	}

	return threads, nil
}

// Sampler abstracts the bounded classification window (step 3) so this
// package doesn't depend directly on pkg/probe; pkg/tracer supplies the
// concrete implementation over the ring buffer and stack-trace map.
type Sampler interface {
	// SampleClassify runs for the given duration and returns, per TID, the
	// strongest ThreadClass observed.
	SampleClassify(ctx context.Context, d time.Duration) (map[uint32]ThreadClass, error)
}

// Discover runs the four-step fallback chain. explicitPrefix, when
// non-empty, short-circuits to step 1 with no further fallback, even if it
// matches nothing (explicit user intent, per spec).
func Discover(ctx context.Context, pid int, explicitPrefix string, sampler Sampler, logger log.Logger) ([]Worker, error) {
	threads, err := ListThreads(pid)
	if err != nil {
		return nil, err
	}

	if explicitPrefix != "" {
		return byPrefix(threads, explicitPrefix), nil
	}

	for _, prefix := range DefaultPrefixes {
		if w := byPrefix(threads, prefix); len(w) > 0 {
			logger.Debug().Str("prefix", prefix).Int("count", len(w)).Msg("workers: matched default prefix")
			return w, nil
		}
	}

	if sampler != nil {
		classes, err := sampler.SampleClassify(ctx, 500*time.Millisecond)
		if err == nil {
			if w := fromClasses(threads, classes); len(w) > 0 {
				logger.Debug().Int("count", len(w)).Msg("workers: discovered via stack classification")
				return w, nil
			}
		} else {
			logger.Debug().Err(err).Msg("workers: stack-based classification failed, falling through")
		}
	}

	w := byLargestGroup(threads)
	logger.Debug().Int("count", len(w)).Msg("workers: fell back to largest thread group")
	return w, nil
}

func byPrefix(threads []Thread, prefix string) []Worker {
	var matched []Thread
	for _, t := range threads {
		if strings.HasPrefix(t.Comm, prefix) {
			matched = append(matched, t)
		}
	}
	return assignIDs(matched)
}

func fromClasses(threads []Thread, classes map[uint32]ThreadClass) []Worker {
	var matched []Thread
	for _, t := range threads {
		if classes[t.TID] == ClassWorker {
			matched = append(matched, t)
		}
	}
	return assignIDs(matched)
}

// groupKeyPattern strips a trailing numeric suffix (e.g. "-3") so that
// "tokio-runtime-w0" and "tokio-runtime-w1" collapse into one group, and
// also handles the 15-byte kernel comm truncation that can chop the suffix
// entirely.
var groupKeyPattern = regexp.MustCompile(`-?\d+$`)

func groupKey(comm string) string {
	return groupKeyPattern.ReplaceAllString(comm, "")
}

func byLargestGroup(threads []Thread) []Worker {
	groups := make(map[string][]Thread)
	for _, t := range threads {
		key := groupKey(t.Comm)
		groups[key] = append(groups[key], t)
	}

	var bestKey string
	var bestSize int
	for key, members := range groups {
		if len(members) > bestSize {
			bestSize = len(members)
			bestKey = key
		}
	}

	return assignIDs(groups[bestKey])
}

func assignIDs(threads []Thread) []Worker {
	sort.Slice(threads, func(i, j int) bool { return threads[i].TID < threads[j].TID })

	workers := make([]Worker, len(threads))
	for i, t := range threads {
		workers[i] = Worker{WorkerID: uint32(i), TID: t.TID, Comm: t.Comm}
	}
	return workers
}
