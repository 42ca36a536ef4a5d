package registry

import (
	"encoding/json"
	"time"
)

// DateLayout is the wire and on-disk format of the enrolment timestamp.
const DateLayout = "2006-01-02 15:04:05"

// UserRecord is one enrolled identity.
//
// Field order is significant: it fixes the key order of the JSON document
// and of USERS: payloads sent to clients.
type UserRecord struct {
	// ID is the allocated ID_No, unique among current records.
	ID int `json:"ID_No"`

	// Roll is the human identifier enrolled against the fingerprint.
	Roll string `json:"roll"`

	// EnrolledAt is when the device confirmed the enrolment.
	EnrolledAt Timestamp `json:"date,omitzero"`
}

// Timestamp is a local wall-clock time serialised as "YYYY-MM-DD HH:MM:SS".
//
// A date that cannot be parsed is kept verbatim and written back unchanged,
// so one odd record never costs the rest of the document.
type Timestamp struct {
	time.Time

	// raw is the original JSON value of an unparsable date.
	raw string
}

// NewTimestamp truncates t to whole seconds, matching what the document can hold.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.Truncate(time.Second)}
}

// IsZero reports whether the record carried no date at all. Used by
// omitzero so a missing date stays missing.
func (t Timestamp) IsZero() bool {
	return t.Time.IsZero() && t.raw == ""
}

// Unparsed reports whether the date was kept verbatim.
func (t Timestamp) Unparsed() bool {
	return t.raw != ""
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.raw != "" {
		return []byte(t.raw), nil
	}
	if t.Time.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.Format(DateLayout))
}

// UnmarshalJSON implements json.Unmarshaler.
// Documents written by other tools may carry RFC 3339 dates; both are
// parsed. Anything else is kept as-is.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	*t = Timestamp{}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if parsed, err := time.ParseInLocation(DateLayout, s, time.Local); err == nil {
			t.Time = parsed
			return nil
		}
		if parsed, err := time.Parse(time.RFC3339, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	t.raw = string(data)
	return nil
}

// String returns the timestamp in DateLayout.
func (t Timestamp) String() string {
	if t.raw != "" {
		var s string
		if err := json.Unmarshal([]byte(t.raw), &s); err == nil {
			return s
		}
		return t.raw
	}
	if t.Time.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}
