package nodes

import "sync/atomic"

// IDGenerator hands out process-unique inode numbers. Numbers are never
// reused.
type IDGenerator struct {
	next atomic.Uint64
}

// NewIDGenerator returns a generator whose first Next call returns start.
func NewIDGenerator(start uint64) *IDGenerator {
	g := &IDGenerator{}
	g.next.Store(start)
	return g
}

// Next returns a fresh inode number. It is safe for concurrent use.
func (g *IDGenerator) Next() uint64 {
	return g.next.Add(1) - 1
}
