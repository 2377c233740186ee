// Package remoteid models the platform-side identifier of a ledger record.
//
// A record that has never completed a Create push carries a locally generated
// placeholder token; after the first successful Create the platform-issued id
// replaces it. The two forms are mutually exclusive, and adapters choose
// create-vs-update semantics by inspecting the form. Keeping this a tagged
// type (rather than a bare string with a naming convention) makes the wrong
// pairing unrepresentable in adapter code.
package remoteid

import (
	"crypto/rand"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// placeholderPrefix marks locally generated tokens in persisted form.
const placeholderPrefix = "local-"

// Kind distinguishes the two forms a RemoteID can take.
type Kind int

const (
	// KindPlaceholder is a locally generated stand-in, pre-first-push.
	KindPlaceholder Kind = iota
	// KindIssued is an identifier assigned by the platform.
	KindIssued
)

// RemoteID is the tagged union {Placeholder(token) | Issued(id)}.
// The zero value is an empty placeholder and is not valid; construct through
// NewPlaceholder, Issued or Parse.
type RemoteID struct {
	kind  Kind
	value string
}

// NewPlaceholder generates a fresh placeholder token.
// ULIDs are time-ordered, so placeholders sort by creation time like the
// timestamp tokens they replace.
func NewPlaceholder() RemoteID {
	token := ulid.MustNew(ulid.Timestamp(time.Now().UTC()), rand.Reader)
	return RemoteID{kind: KindPlaceholder, value: token.String()}
}

// Issued wraps a platform-assigned identifier.
func Issued(id string) RemoteID {
	return RemoteID{kind: KindIssued, value: id}
}

// Parse reconstructs a RemoteID from its persisted string form.
func Parse(s string) (RemoteID, error) {
	if s == "" {
		return RemoteID{}, fmt.Errorf("remote id is empty")
	}
	if token, ok := strings.CutPrefix(s, placeholderPrefix); ok {
		if _, err := ulid.ParseStrict(token); err != nil {
			return RemoteID{}, fmt.Errorf("malformed placeholder token %q: %w", s, err)
		}
		return RemoteID{kind: KindPlaceholder, value: token}, nil
	}
	return RemoteID{kind: KindIssued, value: s}, nil
}

// Kind returns the form of this id.
func (r RemoteID) Kind() Kind {
	return r.kind
}

// IsPlaceholder reports whether the record has never completed a Create push.
func (r RemoteID) IsPlaceholder() bool {
	return r.kind == KindPlaceholder
}

// IsIssued reports whether the platform has assigned this id.
func (r RemoteID) IsIssued() bool {
	return r.kind == KindIssued
}

// IsZero reports an unconstructed RemoteID.
func (r RemoteID) IsZero() bool {
	return r.value == ""
}

// Issued returns the platform identifier, or empty string for placeholders.
func (r RemoteID) IssuedID() string {
	if r.kind != KindIssued {
		return ""
	}
	return r.value
}

// String returns the persisted form ("local-<ULID>" or the issued id).
func (r RemoteID) String() string {
	if r.kind == KindPlaceholder {
		return placeholderPrefix + r.value
	}
	return r.value
}

// Value implements driver.Valuer for database persistence.
func (r RemoteID) Value() (driver.Value, error) {
	if r.IsZero() {
		return nil, fmt.Errorf("cannot persist zero RemoteID")
	}
	return r.String(), nil
}

// Scan implements sql.Scanner.
func (r *RemoteID) Scan(src any) error {
	switch v := src.(type) {
	case string:
		parsed, err := Parse(v)
		if err != nil {
			return err
		}
		*r = parsed
		return nil
	case []byte:
		return r.Scan(string(v))
	default:
		return fmt.Errorf("cannot scan %T into RemoteID", src)
	}
}

// MarshalJSON implements json.Marshaler.
func (r RemoteID) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *RemoteID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
