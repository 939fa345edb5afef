package hail

import "time"

// Entity carries the timestamps common to all persisted Hail records.
// Embed it in entity structs.
type Entity struct {
	CreatedAt time.Time `json:"created_at" msgpack:"created_at"`
	UpdatedAt time.Time `json:"updated_at" msgpack:"updated_at"`
}

// Touch sets UpdatedAt to now, initializing CreatedAt on first call.
func (e *Entity) Touch(now time.Time) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
}
