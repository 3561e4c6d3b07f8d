// Package session issues short random alphanumeric session identifiers.
//
// An identifier is six random base 36 digits, three base 36 digits of a
// two-second time tic, and a base 36 counter that restarts every tic. The
// counter keeps identifiers issued by one Generator within one tic distinct;
// the random part makes collisions across generators unlikely. Identifiers
// are at least 10 characters long.
package session

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	randomLength = 6
	timeLength   = 3

	randomSpace = 2176782336 // 36^6
	timeSpace   = 46656      // 36^3

	// TicLength is the duration of one time tic.
	TicLength = 2 * time.Second

	// MinLength is the length of the shortest identifier.
	MinLength = randomLength + timeLength + 1
)

// Generator issues session identifiers. It is safe for concurrent use.
type Generator struct {
	random io.Reader
	now    func() time.Time

	mu      sync.Mutex
	lastTic int64
	counter int64
}

// Option configures a Generator.
type Option func(*Generator)

// WithRandom replaces crypto/rand as the source of the random part.
func WithRandom(r io.Reader) Option {
	return func(g *Generator) {
		if r != nil {
			g.random = r
		}
	}
}

// WithNow replaces the wall clock.
func WithNow(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// New returns a Generator.
func New(opts ...Option) *Generator {
	g := &Generator{random: rand.Reader, now: time.Now, lastTic: -1}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Next returns a new identifier.
func (g *Generator) Next() (string, error) {
	var b [8]byte
	if _, err := io.ReadFull(g.random, b[:]); err != nil {
		return "", fmt.Errorf("failed to read random session bytes: %w", err)
	}
	random := binary.BigEndian.Uint64(b[:]) % randomSpace

	g.mu.Lock()
	tic := (g.now().UnixMilli() / TicLength.Milliseconds()) % timeSpace
	if tic != g.lastTic {
		g.lastTic = tic
		g.counter = 0
	}
	count := g.counter
	g.counter++
	g.mu.Unlock()

	var sb strings.Builder
	sb.Grow(MinLength + 2)
	sb.WriteString(padBase36(int64(random), randomLength))
	sb.WriteString(padBase36(tic, timeLength))
	sb.WriteString(strconv.FormatInt(count, 36))
	return sb.String(), nil
}

func padBase36(v int64, width int) string {
	s := strconv.FormatInt(v, 36)
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
