package uuid

import (
	guuid "github.com/google/uuid"
)

// Google converts u into a github.com/google/uuid value. Both types share
// the same byte layout.
func (u UUID) Google() guuid.UUID {
	return guuid.UUID(u)
}

// FromGoogle converts a github.com/google/uuid value.
func FromGoogle(g guuid.UUID) UUID {
	return UUID(g)
}
