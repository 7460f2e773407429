package tracer

import (
	"context"
	"time"

	"github.com/cong-or/hud/pkg/event"
	"github.com/cong-or/hud/pkg/symbolize"
	"github.com/cong-or/hud/pkg/workers"
)

// StackSampler implements workers.Sampler over the same ring buffer and
// stack-trace map the live pump reads, for worker discovery's step 3. It
// reads raw events directly rather than through a Tracer, since
// classification runs before the session's Tracer exists.
type StackSampler struct {
	resolver        StackResolver
	symbolizer      *symbolize.Symbolizer
	regions         []symbolize.MemoryRegion
	rawEvents       <-chan []byte
	setClassifyMode func(enabled bool) error
}

func NewStackSampler(resolver StackResolver, symbolizer *symbolize.Symbolizer, regions []symbolize.MemoryRegion, rawEvents <-chan []byte, setClassifyMode func(enabled bool) error) *StackSampler {
	return &StackSampler{
		resolver:        resolver,
		symbolizer:      symbolizer,
		regions:         regions,
		rawEvents:       rawEvents,
		setClassifyMode: setClassifyMode,
	}
}

// SampleClassify enables the sampler's classify mode (bypassing the
// is_worker gate so every thread of the target gets sampled, not just an
// already-known worker set), drains CPU-sample events for d, and returns
// the strongest ThreadClass observed per TID.
func (s *StackSampler) SampleClassify(ctx context.Context, d time.Duration) (map[uint32]workers.ThreadClass, error) {
	if err := s.setClassifyMode(true); err != nil {
		return nil, err
	}
	defer s.setClassifyMode(false)

	classes := make(map[uint32]workers.ThreadClass)
	deadline := time.NewTimer(d)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return classes, ctx.Err()

		case <-deadline.C:
			return classes, nil

		case raw := <-s.rawEvents:
			evt, err := event.Decode(raw)
			if err != nil || evt.EventType != event.KindCPUSample || !evt.HasStack() {
				continue
			}

			names := s.functionNames(evt.StackID)
			classes[evt.TID] = workers.Upgrade(classes[evt.TID], workers.ClassifyFrames(names))
		}
	}
}

func (s *StackSampler) functionNames(stackID int64) []string {
	frames := resolveFrames(s.resolver, s.regions, s.symbolizer, stackID)
	names := make([]string, len(frames))
	for i, f := range frames {
		names[i] = f.Function
	}
	return names
}
