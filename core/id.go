package core

import (
	"github.com/google/uuid"

	"pkt.systems/querydesk/schema"
)

// NewRequestID returns a fresh request identifier.
func NewRequestID() schema.RequestID {
	return schema.RequestID(uuid.NewString())
}
