package waterfall

import "github.com/samber/lo"

// registry holds the sources in priority order with an id index.
// It is built once and never reordered; it does no locking of its own.
type registry struct {
	ordered []*Source
	byID    map[SourceID]*Source
}

func newRegistry(sources []*Source) *registry {
	return &registry{
		ordered: sources,
		byID:    lo.KeyBy(sources, func(s *Source) SourceID { return s.ID }),
	}
}

// get returns the source with the given id.
func (r *registry) get(id SourceID) (*Source, bool) {
	s, ok := r.byID[id]
	return s, ok
}

// all returns the sources in priority order. Callers must not modify the slice.
func (r *registry) all() []*Source {
	return r.ordered
}

func (r *registry) len() int {
	return len(r.ordered)
}
