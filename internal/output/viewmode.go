package output

// ViewMode is the dashboard's view-state machine (SPEC_FULL.md §4.7).
type ViewMode int

const (
	ViewAnalysis ViewMode = iota
	ViewDrillDown
	ViewSearch
	ViewWorkerFilter
)

func (m ViewMode) String() string {
	switch m {
	case ViewAnalysis:
		return "ANALYSIS"
	case ViewDrillDown:
		return "DRILL-DOWN"
	case ViewSearch:
		return "SEARCH"
	case ViewWorkerFilter:
		return "WORKER FILTER"
	default:
		return "UNKNOWN"
	}
}

// KeyKind classifies one decoded keypress; the dashboard only needs enough
// of a keyboard model to drive the state machine below, not a general input
// library.
type KeyKind int

const (
	KeyChar KeyKind = iota
	KeyUp
	KeyDown
	KeyEnter
	KeyEsc
	KeyBackspace
)

type Key struct {
	Kind KeyKind
	Rune rune
}

// State holds the dashboard's interactive state. It is deliberately free of
// any terminal or rendering concern so the transition table can be tested
// without a tty.
type State struct {
	Mode              ViewMode
	SearchQuery       string
	SelectedWorkers   map[uint32]bool
	WorkerCursor      int
	HotspotCursor     int
	AllWorkers        []uint32
	ShouldQuit        bool
	FilterFunctionSub string // applied search filter, distinct from the in-progress query
}

func NewState(workers []uint32) *State {
	selected := make(map[uint32]bool, len(workers))
	for _, w := range workers {
		selected[w] = true
	}
	return &State{
		Mode:            ViewAnalysis,
		SelectedWorkers: selected,
		AllWorkers:      workers,
	}
}

// HandleKey advances the state machine by exactly one keypress, mirroring
// the transition table: Analysis -> DrillDown/Search/WorkerFilter/quit,
// DrillDown -> Analysis, Search -> DrillDown/Analysis, WorkerFilter ->
// Analysis.
func (s *State) HandleKey(k Key) {
	switch s.Mode {
	case ViewAnalysis:
		s.handleAnalysisKey(k)
	case ViewDrillDown:
		s.handleDrillDownKey(k)
	case ViewSearch:
		s.handleSearchKey(k)
	case ViewWorkerFilter:
		s.handleWorkerFilterKey(k)
	}
}

func (s *State) handleAnalysisKey(k Key) {
	switch k.Kind {
	case KeyChar:
		switch k.Rune {
		case 'q', 'Q':
			s.ShouldQuit = true
		case '/':
			s.SearchQuery = ""
			s.Mode = ViewSearch
		case 'w', 'W':
			s.Mode = ViewWorkerFilter
		case 'c', 'C':
			s.FilterFunctionSub = ""
			s.SearchQuery = ""
			for _, w := range s.AllWorkers {
				s.SelectedWorkers[w] = true
			}
		}
	case KeyUp:
		if s.HotspotCursor > 0 {
			s.HotspotCursor--
		}
	case KeyDown:
		s.HotspotCursor++
	case KeyEnter:
		s.Mode = ViewDrillDown
	}
}

func (s *State) handleDrillDownKey(k Key) {
	if k.Kind == KeyEsc || (k.Kind == KeyChar && (k.Rune == 'q' || k.Rune == 'Q')) {
		s.Mode = ViewAnalysis
	}
}

func (s *State) handleSearchKey(k Key) {
	switch k.Kind {
	case KeyEsc:
		s.SearchQuery = ""
		s.FilterFunctionSub = ""
		s.Mode = ViewAnalysis
	case KeyEnter:
		s.FilterFunctionSub = s.SearchQuery
		s.Mode = ViewDrillDown
	case KeyBackspace:
		if len(s.SearchQuery) > 0 {
			s.SearchQuery = s.SearchQuery[:len(s.SearchQuery)-1]
		}
	case KeyChar:
		s.SearchQuery += string(k.Rune)
	}
}

func (s *State) handleWorkerFilterKey(k Key) {
	switch k.Kind {
	case KeyEsc:
		s.Mode = ViewAnalysis
	case KeyUp:
		if s.WorkerCursor > 0 {
			s.WorkerCursor--
		}
	case KeyDown:
		if s.WorkerCursor+1 < len(s.AllWorkers) {
			s.WorkerCursor++
		}
	case KeyEnter:
		if !s.anyWorkerSelected() {
			for _, w := range s.AllWorkers {
				s.SelectedWorkers[w] = true
			}
		}
		s.Mode = ViewAnalysis
	case KeyChar:
		switch k.Rune {
		case ' ':
			if len(s.AllWorkers) > 0 {
				w := s.AllWorkers[s.WorkerCursor]
				s.SelectedWorkers[w] = !s.SelectedWorkers[w]
			}
		case 'a', 'A':
			for _, w := range s.AllWorkers {
				s.SelectedWorkers[w] = true
			}
		case 'n', 'N':
			for w := range s.SelectedWorkers {
				s.SelectedWorkers[w] = false
			}
		}
	}
}

func (s *State) anyWorkerSelected() bool {
	for _, selected := range s.SelectedWorkers {
		if selected {
			return true
		}
	}
	return false
}
