// Package serial issues sequential int64 identifiers within a bounded range.
package serial

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
)

// ErrSequenceExhausted is returned by a Fail generator after it issued its
// maximum.
var ErrSequenceExhausted = errors.New("serial: sequence exhausted")

// Policy decides what happens after the maximum is issued.
type Policy int

const (
	// Fail returns ErrSequenceExhausted for every call after the maximum.
	Fail Policy = iota
	// Wrap restarts at the minimum.
	Wrap
)

func (p Policy) String() string {
	switch p {
	case Fail:
		return "fail"
	case Wrap:
		return "wrap"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy accepts "fail" or "wrap".
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "fail", "":
		return Fail, nil
	case "wrap":
		return Wrap, nil
	default:
		return Fail, fmt.Errorf("unknown serial policy %q", s)
	}
}

// Generator issues min, min+1, ... max. It is safe for concurrent use.
type Generator struct {
	min, max int64
	policy   Policy

	mu       sync.Mutex
	next     int64
	startSet bool
	done     bool
}

// Option configures a Generator.
type Option func(*Generator)

// WithRange sets the inclusive bounds. Default: 0 to math.MaxInt64.
func WithRange(min, max int64) Option {
	return func(g *Generator) {
		g.min, g.max = min, max
	}
}

// WithStart sets the first value issued. It must lie within the range.
func WithStart(start int64) Option {
	return func(g *Generator) {
		g.next = start
		g.startSet = true
	}
}

// WithPolicy sets the exhaustion policy. Default: Fail.
func WithPolicy(p Policy) Option {
	return func(g *Generator) { g.policy = p }
}

// New returns a Generator.
func New(opts ...Option) (*Generator, error) {
	g := &Generator{min: 0, max: math.MaxInt64}
	for _, opt := range opts {
		opt(g)
	}
	if !g.startSet {
		g.next = g.min
	}
	if g.min > g.max {
		return nil, fmt.Errorf("invalid serial range [%d, %d]", g.min, g.max)
	}
	if g.next < g.min || g.next > g.max {
		return nil, fmt.Errorf("serial start %d outside range [%d, %d]", g.next, g.min, g.max)
	}
	return g, nil
}

// Next returns the next value.
func (g *Generator) Next() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.done {
		if g.policy != Wrap {
			return 0, fmt.Errorf("%w: maximum %d reached", ErrSequenceExhausted, g.max)
		}
		g.next = g.min
		g.done = false
	}

	v := g.next
	if v == g.max {
		g.done = true
	} else {
		g.next++
	}
	return v, nil
}

// NextString returns the next value in decimal.
func (g *Generator) NextString() (string, error) {
	v, err := g.Next()
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(v, 10), nil
}

// Policy returns the exhaustion policy.
func (g *Generator) Policy() Policy { return g.policy }
