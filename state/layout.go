// Package state provides named state and input vectors and trajectories.
package state

import (
	"errors"
	"fmt"

	"github.com/milosgajdos/go-control/symbolic"
)

// ErrInvalid is returned for invalid layouts, vectors and trajectories.
var ErrInvalid = errors.New("state: invalid")

// Layout describes the named components of a state or input vector.
// The first DimQ components are position-like (q), the rest are velocity-like (v).
type Layout struct {
	names []string
	idx   map[string]int
	dimQ  int
}

// NewLayout creates new Layout with the given component names.
// It returns error if names are empty or duplicated, or dimQ is out of range.
func NewLayout(names []string, dimQ int) (*Layout, error) {
	if dimQ < 0 || dimQ > len(names) {
		return nil, fmt.Errorf("%w: dimQ %d out of range [0, %d]", ErrInvalid, dimQ, len(names))
	}

	idx := make(map[string]int, len(names))
	for i, n := range names {
		if n == "" {
			return nil, fmt.Errorf("%w: empty component name at %d", ErrInvalid, i)
		}
		if _, ok := idx[n]; ok {
			return nil, fmt.Errorf("%w: duplicate component %q", ErrInvalid, n)
		}
		idx[n] = i
	}

	ns := make([]string, len(names))
	copy(ns, names)

	return &Layout{names: ns, idx: idx, dimQ: dimQ}, nil
}

// MustLayout is like NewLayout but panics on error.
// It is meant for package level layouts of built-in models.
func MustLayout(names []string, dimQ int) *Layout {
	l, err := NewLayout(names, dimQ)
	if err != nil {
		panic(err)
	}
	return l
}

// Len returns the number of components.
func (l *Layout) Len() int { return len(l.names) }

// DimQ returns the number of position-like components.
func (l *Layout) DimQ() int { return l.dimQ }

// DimV returns the number of velocity-like components.
func (l *Layout) DimV() int { return len(l.names) - l.dimQ }

// Names returns a copy of the component names.
func (l *Layout) Names() []string {
	ns := make([]string, len(l.names))
	copy(ns, l.names)
	return ns
}

// Index returns the index of the named component.
func (l *Layout) Index(name string) (int, bool) {
	i, ok := l.idx[name]
	return i, ok
}

// Symbols returns a vector of symbolic variables named prefix+name.
func (l *Layout) Symbols(prefix string) symbolic.Vector {
	ns := make([]string, len(l.names))
	for i, n := range l.names {
		ns[i] = prefix + n
	}
	return symbolic.NewVarVector(ns...)
}

// Zero returns a zero vector with this layout.
func (l *Layout) Zero() *Vector {
	return &Vector{layout: l, data: make([]float64, len(l.names))}
}

// New returns a vector with this layout holding a copy of vals.
func (l *Layout) New(vals ...float64) (*Vector, error) {
	if len(vals) != len(l.names) {
		return nil, fmt.Errorf("%w: %d values for %d components", ErrInvalid, len(vals), len(l.names))
	}
	d := make([]float64, len(vals))
	copy(d, vals)
	return &Vector{layout: l, data: d}, nil
}
