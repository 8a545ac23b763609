// Package presence tracks who is in which room. The authoritative copy of
// every session lives in Redis under a TTL; in-process state is only an
// optimization layered on top of it.
package presence

import (
	"encoding/json"
	"time"
)

// Visibility is the announced state of a participant.
type Visibility string

const (
	// VisibilityVisible means the participant appears in rosters and
	// traffic messages.
	VisibilityVisible Visibility = "visible"
	// VisibilityHidden means the participant is present but suppressed
	// from rosters and traffic messages.
	VisibilityHidden Visibility = "hidden"
)

// Record is one user's presence in one room. Records are normalized at
// the store boundary: zero timestamps are stamped on write and unknown
// visibility collapses to visible on read.
type Record struct {
	UserID     uint       `json:"user_id"`
	Username   string     `json:"username"`
	Level      int        `json:"level"`
	RoomID     string     `json:"room_id"`
	Visibility Visibility `json:"visibility"`
	JoinedAt   time.Time  `json:"joined_at"`
	LastSeen   time.Time  `json:"last_seen"`
}

// normalize fills defaults so that every record read back from the store
// is directly usable.
func (r *Record) normalize(now time.Time) {
	if r.Visibility != VisibilityHidden {
		r.Visibility = VisibilityVisible
	}
	if r.JoinedAt.IsZero() {
		r.JoinedAt = now
	}
	if r.LastSeen.IsZero() {
		r.LastSeen = now
	}
}

func (r *Record) encode() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeRecord(raw string, now time.Time) (*Record, error) {
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, err
	}
	rec.normalize(now)
	return &rec, nil
}
