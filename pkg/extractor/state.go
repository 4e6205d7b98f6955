package extractor

// State is a step of one detail-view extraction
type State int

const (
	Idle State = iota
	Opening
	Collecting
	Advancing
	Closing
	Closed
	Failed
)

var stateNames = map[State]string{
	Idle:       "idle",
	Opening:    "opening",
	Collecting: "collecting",
	Advancing:  "advancing",
	Closing:    "closing",
	Closed:     "closed",
	Failed:     "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether s ends an extraction
func (s State) Terminal() bool {
	return s == Closed || s == Failed
}

// urlSet keeps URLs in first-seen order
type urlSet struct {
	order []string
	index map[string]struct{}
}

func newURLSet() *urlSet {
	return &urlSet{index: make(map[string]struct{})}
}

func (s *urlSet) add(u string) bool {
	if _, ok := s.index[u]; ok {
		return false
	}
	s.index[u] = struct{}{}
	s.order = append(s.order, u)
	return true
}

func (s *urlSet) has(u string) bool {
	_, ok := s.index[u]
	return ok
}

func (s *urlSet) list() []string {
	return append([]string(nil), s.order...)
}
