package aspath

import (
	"strconv"
	"strings"
)

// Path is an AS path as seen by a collector peer, nearest AS first.
type Path []uint32

// Equal reports whether p and o list the same ASNs in the same order.
func (p Path) Equal(o Path) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, asn := range p {
		parts[i] = strconv.FormatUint(uint64(asn), 10)
	}
	return strings.Join(parts, " ")
}

// Snapshot maps source IDs to their AS path for one point in time. Source IDs
// keep the order they were first added in.
type Snapshot struct {
	order []string
	paths map[string]Path
}

func NewSnapshot() *Snapshot {
	return &Snapshot{paths: make(map[string]Path)}
}

// Add records the path for sourceID. A repeated source ID replaces the path
// but keeps its original position.
func (s *Snapshot) Add(sourceID string, path Path) {
	if _, ok := s.paths[sourceID]; !ok {
		s.order = append(s.order, sourceID)
	}
	s.paths[sourceID] = path
}

func (s *Snapshot) Get(sourceID string) (Path, bool) {
	if s == nil {
		return nil, false
	}
	p, ok := s.paths[sourceID]
	return p, ok
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

func (s *Snapshot) SourceIDs() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.order...)
}
