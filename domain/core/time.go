package core

import (
	"time"
)

// Timestamp represents a point in time, held in UTC at microsecond resolution
// so serialized digests survive database and JSON round trips unchanged
type Timestamp time.Time

// NewTimestamp creates a new timestamp from time.Time
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp(t.UTC().Truncate(time.Microsecond))
}

// Now returns the current timestamp
func Now() Timestamp {
	return NewTimestamp(time.Now())
}

// Time returns the underlying time.Time
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

// IsZero checks if the timestamp is zero
func (t Timestamp) IsZero() bool {
	return time.Time(t).IsZero()
}

// Before returns true if t is before u
func (t Timestamp) Before(u Timestamp) bool {
	return time.Time(t).Before(time.Time(u))
}

// After returns true if t is after u
func (t Timestamp) After(u Timestamp) bool {
	return time.Time(t).After(time.Time(u))
}

// Add returns the timestamp shifted by d
func (t Timestamp) Add(d time.Duration) Timestamp {
	return Timestamp(time.Time(t).Add(d))
}

// Domain-specific time types
type (
	RegisteredAt Timestamp
	EvaluatedAt  Timestamp
	SealedAt     Timestamp
)

// Constructors for domain time types
func NewRegisteredAt(t time.Time) RegisteredAt { return RegisteredAt(NewTimestamp(t)) }
func NewEvaluatedAt(t time.Time) EvaluatedAt   { return EvaluatedAt(NewTimestamp(t)) }
func NewSealedAt(t time.Time) SealedAt         { return SealedAt(NewTimestamp(t)) }

// Time conversions
func (t RegisteredAt) Time() time.Time { return Timestamp(t).Time() }
func (t EvaluatedAt) Time() time.Time  { return Timestamp(t).Time() }
func (t SealedAt) Time() time.Time     { return Timestamp(t).Time() }

// JSON marshaling for Timestamp
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return time.Time(t).MarshalJSON()
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var tm time.Time
	if err := tm.UnmarshalJSON(data); err != nil {
		return err
	}
	*t = NewTimestamp(tm)
	return nil
}

// String representations
func (t RegisteredAt) String() string { return t.Time().Format(time.RFC3339) }
func (t EvaluatedAt) String() string  { return t.Time().Format(time.RFC3339) }
func (t SealedAt) String() string     { return t.Time().Format(time.RFC3339) }
