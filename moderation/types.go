/*
types.go - Core types for the moderation action ledger

PURPOSE:
  Defines the action record stored in the ledger and the small value types
  around it. A Record is immutable once registered except for its Revocation
  sub-record, which only the revocation workflow and the expiration sweep
  touch.

KEY TYPES:
  ActionType:       ban | mute | warn | flag | wagerblacklist
  Expiration:       epoch seconds, or Never
  Revocation:       who/when/why an action was lifted
  Record:           one ledger entry

PERSISTED LAYOUT:
  Records serialize to the same document shape the panel has always stored:

    {"id":"M-01J...","type":"mute","ids":["license:abc"],"playerName":"Bob",
     "reason":"spam","author":"admin1","timestamp":1700000000,
     "expiration":false,"revocation":{"timestamp":null,"approver":null,
     "requestor":null,"status":null}}

  "expiration": false and "playerName": false mean "absent".

SEE ALSO:
  - ledger.go: Registration and lookup
  - revocation.go: Revocation state machine
*/
package moderation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// =============================================================================
// ACTION TYPES
// =============================================================================

// ActionType identifies the family of a moderation action.
type ActionType string

const (
	ActionBan            ActionType = "ban"
	ActionMute           ActionType = "mute"
	ActionWarn           ActionType = "warn"
	ActionFlag           ActionType = "flag"
	ActionWagerBlacklist ActionType = "wagerblacklist"
)

// ActionTypes lists every known action type.
var ActionTypes = []ActionType{ActionBan, ActionMute, ActionWarn, ActionFlag, ActionWagerBlacklist}

// Valid reports whether t is a known action type.
func (t ActionType) Valid() bool {
	switch t {
	case ActionBan, ActionMute, ActionWarn, ActionFlag, ActionWagerBlacklist:
		return true
	}
	return false
}

// Expires reports whether actions of this type carry a timed expiration.
// Only bans and mutes lapse on their own.
func (t ActionType) Expires() bool {
	return t == ActionBan || t == ActionMute
}

// IDPrefix is the namespace prepended to generated action ids.
func (t ActionType) IDPrefix() string {
	switch t {
	case ActionBan:
		return "B"
	case ActionMute:
		return "M"
	case ActionWarn:
		return "W"
	case ActionFlag:
		return "F"
	case ActionWagerBlacklist:
		return "WB"
	}
	return "X"
}

// ParseActionType converts a route parameter into an ActionType.
func ParseActionType(s string) (ActionType, error) {
	t := ActionType(s)
	if !t.Valid() {
		return "", &ValidationError{Field: "type", Message: fmt.Sprintf("unknown action type %q", s)}
	}
	return t, nil
}

// =============================================================================
// EXPIRATION
// =============================================================================

// Expiration is an epoch timestamp in seconds. The zero value is Never.
type Expiration int64

// Never marks an action that does not lapse.
const Never Expiration = 0

// ExpiresAt returns an expiration at t, truncated to whole seconds.
func ExpiresAt(t time.Time) Expiration {
	return Expiration(t.Unix())
}

// IsNever reports whether the action is permanent.
func (e Expiration) IsNever() bool {
	return e == Never
}

// Before reports whether the expiration lapsed strictly before now.
// Never is never before anything.
func (e Expiration) Before(now time.Time) bool {
	return !e.IsNever() && int64(e) < now.Unix()
}

// Time returns the expiration instant; ok is false for Never.
func (e Expiration) Time() (t time.Time, ok bool) {
	if e.IsNever() {
		return time.Time{}, false
	}
	return time.Unix(int64(e), 0).UTC(), true
}

// MarshalJSON writes Never as false and anything else as epoch seconds.
func (e Expiration) MarshalJSON() ([]byte, error) {
	if e.IsNever() {
		return []byte("false"), nil
	}
	return json.Marshal(int64(e))
}

// UnmarshalJSON accepts false, null or epoch seconds.
func (e *Expiration) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "false", "null":
		*e = Never
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid expiration %s: %w", data, err)
	}
	*e = Expiration(v)
	return nil
}

// =============================================================================
// REVOCATION
// =============================================================================

// RevocationStatus is empty while an action is active.
type RevocationStatus string

const (
	RevocationNone     RevocationStatus = ""
	RevocationApproved RevocationStatus = "approved"
)

func (s RevocationStatus) MarshalJSON() ([]byte, error) {
	if s == RevocationNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(s))
}

func (s *RevocationStatus) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		*s = RevocationNone
		return nil
	}
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = RevocationStatus(v)
	return nil
}

// Revocation tracks how an action was lifted. All fields are null while
// the action is active.
type Revocation struct {
	Timestamp *int64           `json:"timestamp"`
	Approver  *string          `json:"approver"`
	Requestor *string          `json:"requestor"`
	Status    RevocationStatus `json:"status"`
	Reason    *string          `json:"reason,omitempty"`
}

func (r Revocation) clone() Revocation {
	return Revocation{
		Timestamp: clonePtr(r.Timestamp),
		Approver:  clonePtr(r.Approver),
		Requestor: clonePtr(r.Requestor),
		Status:    r.Status,
		Reason:    clonePtr(r.Reason),
	}
}

// =============================================================================
// RECORD
// =============================================================================

// SystemAuthor is the identity stamped on automatic actions.
const SystemAuthor = "SYSTEM"

// Record is one moderation action in the ledger.
type Record struct {
	ID          string     `json:"id"`
	Type        ActionType `json:"type"`
	Identifiers []string   `json:"ids"`
	HardwareIDs []string   `json:"hwids,omitempty"`
	PlayerName  PlayerName `json:"playerName"`
	Reason      string     `json:"reason"`
	Author      string     `json:"author"`
	Timestamp   int64      `json:"timestamp"`
	Expiration  Expiration `json:"expiration"`
	Approver    string     `json:"approver,omitempty"`
	Revocation  Revocation `json:"revocation"`
}

// Clone returns a deep copy. The ledger never hands out its live records.
func (r Record) Clone() Record {
	out := r
	out.Identifiers = cloneStrings(r.Identifiers)
	out.HardwareIDs = cloneStrings(r.HardwareIDs)
	out.Revocation = r.Revocation.clone()
	return out
}

// IsRevoked reports whether the revocation has been approved.
func (r Record) IsRevoked() bool {
	return r.Revocation.Status == RevocationApproved
}

// IsExpired reports whether a timed action lapsed before now.
func (r Record) IsExpired(now time.Time) bool {
	return r.Type.Expires() && r.Expiration.Before(now)
}

// IsActive reports whether the action still applies at now.
func (r Record) IsActive(now time.Time) bool {
	return !r.IsRevoked() && !r.IsExpired(now)
}

// PlayerName is a display-name snapshot. Empty means absent and
// serializes as false.
type PlayerName string

func (p PlayerName) MarshalJSON() ([]byte, error) {
	if p == "" {
		return []byte("false"), nil
	}
	return json.Marshal(string(p))
}

func (p *PlayerName) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "false", "null":
		*p = ""
		return nil
	}
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = PlayerName(v)
	return nil
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func ptr[T any](v T) *T {
	return &v
}
