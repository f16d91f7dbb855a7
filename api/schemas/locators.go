package schemas

// -- Locator Schemas --

// LocatorKind is the technique a strategy uses to find elements.
type LocatorKind string

const (
	// LocatorCSS matches elements by CSS selector.
	LocatorCSS LocatorKind = "css"
	// LocatorXPath matches elements by XPath expression.
	LocatorXPath LocatorKind = "xpath"
	// LocatorText matches clickable elements whose visible text contains the
	// expression. It is the most drift-tolerant and the least specific.
	LocatorText LocatorKind = "text"
)

// LocatorStrategy is one concrete technique for finding the element behind a
// logical target.
type LocatorStrategy struct {
	Kind       LocatorKind `json:"kind"`
	Expression string      `json:"expression"`
}

// Equal reports whether two strategies are the same technique. Used to keep
// candidate sets free of duplicates when adaptation appends proposals.
func (s LocatorStrategy) Equal(other LocatorStrategy) bool {
	return s.Kind == other.Kind && s.Expression == other.Expression
}

func (s LocatorStrategy) String() string {
	return string(s.Kind) + ":" + s.Expression
}

// Candidate is a locator strategy with a static prior confidence in [0,1].
type Candidate struct {
	Strategy LocatorStrategy `json:"strategy"`
	Prior    float64         `json:"prior"`
}

// CandidateSet is the ordered list of candidates for one logical target,
// most confident first. Declared order is the tie-break for equal priors, so
// it is never re-sorted destructively.
type CandidateSet struct {
	Target     string      `json:"target"`
	Candidates []Candidate `json:"candidates"`
}

// Append adds candidates that are not already present. History is never
// replaced; adaptation only ever grows the set. It returns the number of
// candidates actually added.
func (cs *CandidateSet) Append(proposed ...Candidate) int {
	added := 0
	for _, p := range proposed {
		dup := false
		for _, existing := range cs.Candidates {
			if existing.Strategy.Equal(p.Strategy) {
				dup = true
				break
			}
		}
		if !dup {
			cs.Candidates = append(cs.Candidates, p)
			added++
		}
	}
	return added
}

// Clone returns an independent copy so that per-job adaptation never leaks
// into the shared profile catalog.
func (cs *CandidateSet) Clone() *CandidateSet {
	return &CandidateSet{
		Target:     cs.Target,
		Candidates: append([]Candidate(nil), cs.Candidates...),
	}
}

// ResolutionAttempt is one audited probe of a strategy against the live page.
// Every attempt is recorded regardless of outcome; the audit trail is how UI
// drift gets diagnosed after the fact.
type ResolutionAttempt struct {
	Strategy LocatorStrategy `json:"strategy"`
	Prior    float64         `json:"prior"`
	Matches  int             `json:"matches"`
	Observed float64         `json:"observed"`
	Accepted bool            `json:"accepted"`
}

// Resolution is a successful outcome: the strategy to use and the observed
// confidence that earned it.
type Resolution struct {
	Strategy   LocatorStrategy `json:"strategy"`
	Confidence float64         `json:"confidence"`
}

// -- Browser Action Schemas --

// ActionKind is the closed set of element actions the browsing capability
// performs on behalf of the core.
type ActionKind string

const (
	ActionClick  ActionKind = "click"
	ActionFill   ActionKind = "fill"
	ActionSelect ActionKind = "select"
)

// ElementHandle is an opaque reference to an element found by Query. The
// browsing capability is free to encode whatever it needs in Ref; the core
// only passes handles back unmodified.
type ElementHandle struct {
	Ref      string          `json:"ref"`
	Strategy LocatorStrategy `json:"strategy"`
	Index    int             `json:"index"`
}
