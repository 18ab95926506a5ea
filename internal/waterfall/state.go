package waterfall

// Kind discriminates the variants of State.
type Kind int

const (
	// KindInitial means the source was never attempted or was reset after use.
	KindInitial Kind = iota
	// KindLoading means a load request is outstanding.
	KindLoading
	// KindReady means the source holds a handle ready to display.
	KindReady
	// KindFailed means the most recent load attempt failed.
	KindFailed
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindInitial:
		return "initial"
	case KindLoading:
		return "loading"
	case KindReady:
		return "ready"
	case KindFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is the lifecycle status of one ad source. Only a Ready state carries
// a handle and only a Failed state carries an error.
type State struct {
	kind   Kind
	handle Handle
	err    error
}

// Initial returns the state of a source that has nothing loaded.
func Initial() State { return State{kind: KindInitial} }

// Loading returns the state of a source with a load request in flight.
func Loading() State { return State{kind: KindLoading} }

// Ready returns the state of a source holding a displayable handle.
func Ready(h Handle) State { return State{kind: KindReady, handle: h} }

// Failed returns the state of a source whose last load attempt failed.
func Failed(err error) State { return State{kind: KindFailed, err: err} }

// Kind returns the variant of the state.
func (s State) Kind() Kind { return s.kind }

// Handle returns the loaded handle, or nil unless the state is Ready.
func (s State) Handle() Handle { return s.handle }

// Err returns the load failure, or nil unless the state is Failed.
func (s State) Err() error { return s.err }

// IsReady reports whether the source holds a displayable handle.
func (s State) IsReady() bool { return s.kind == KindReady }

// IsLoading reports whether a load request is outstanding.
func (s State) IsLoading() bool { return s.kind == KindLoading }

// IsFailedOrInitial reports whether the source is eligible for a new load request.
func (s State) IsFailedOrInitial() bool {
	return s.kind == KindInitial || s.kind == KindFailed
}

// String returns the kind name, with the failure message for Failed states.
func (s State) String() string {
	if s.kind == KindFailed && s.err != nil {
		return "failed: " + s.err.Error()
	}
	return s.kind.String()
}
