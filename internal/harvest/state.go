package harvest

// State is a step of a category run.
type State int

const (
	StateIdle State = iota
	StateResolving
	StatePaging
	StateEnriching
	StateAborted
	StateFlushing
	StateDone
)

var stateNames = [...]string{
	StateIdle:      "idle",
	StateResolving: "resolving",
	StatePaging:    "paging",
	StateEnriching: "enriching",
	StateAborted:   "aborted",
	StateFlushing:  "flushing",
	StateDone:      "done",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Reason explains why a run stopped paging.
type Reason string

const (
	ReasonNotFound       Reason = "category not found"
	ReasonPagesExhausted Reason = "pages exhausted"
	ReasonRateLimited    Reason = "rate limit reached"
	ReasonNoUsableItems  Reason = "no more statistically usable items"
	ReasonPageBudget     Reason = "page budget exhausted"
	ReasonCancelled      Reason = "cancelled"
	ReasonNetwork        Reason = "network error"
	ReasonMalformed      Reason = "malformed response"
	ReasonUnexpected     Reason = "unexpected error"
)

// Aborted reports whether the run stopped because of a fault rather than a
// normal end of data.
func (r Reason) Aborted() bool {
	switch r {
	case ReasonNetwork, ReasonMalformed, ReasonUnexpected:
		return true
	}
	return false
}
