// Package ids provides process-wide unique identifier generation.
//
// Identifiers are strictly increasing and never reused for the lifetime
// of the process, which lets resource maps treat an identifier as a
// permanent name for exactly one resource generation.
package ids

import "sync/atomic"

// Generator hands out strictly increasing uint64 identifiers.
// The zero value is ready to use and never returns 0, so 0 can serve
// as an "unset" sentinel in resource records.
type Generator struct {
	last atomic.Uint64
}

// Next returns the next identifier. Safe for concurrent use.
func (g *Generator) Next() uint64 {
	return g.last.Add(1)
}
