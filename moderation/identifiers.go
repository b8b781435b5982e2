package moderation

import (
	"sort"
	"strings"
)

// Identifier kinds the game server reports. Other kinds are accepted as-is.
const (
	KindLicense = "license"
	KindDiscord = "discord"
	KindIP      = "ip"
	KindHWID    = "hwid"
	KindFiveM   = "fivem"
	KindSteam   = "steam"
)

// Identifier is a parsed "<kind>:<value>" string.
type Identifier struct {
	Kind  string
	Value string
}

func (id Identifier) String() string {
	return id.Kind + ":" + id.Value
}

// ParseIdentifier splits s on the first colon. Both halves must be non-empty.
func ParseIdentifier(s string) (Identifier, error) {
	kind, value, ok := strings.Cut(s, ":")
	if !ok || kind == "" || value == "" {
		return Identifier{}, &ValidationError{Field: "identifiers", Message: "expected <kind>:<value>, got " + quote(s)}
	}
	return Identifier{Kind: kind, Value: value}, nil
}

// IdentifiersMatch reports whether a and b share at least one identical
// identifier string. Stable identifiers (license, platform accounts) persist
// across sessions, so this is how a reconnecting player is recognized.
func IdentifiersMatch(a, b []string) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	if len(a) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}

// FindIdentifier returns the first identifier of the given kind.
func FindIdentifier(ids []string, kind string) (string, bool) {
	prefix := kind + ":"
	for _, id := range ids {
		if strings.HasPrefix(id, prefix) {
			return id, true
		}
	}
	return "", false
}

// normalizeIdentifiers validates ids and drops duplicates, keeping the
// first occurrence order.
func normalizeIdentifiers(field string, ids []string, required bool) ([]string, error) {
	if required && len(ids) == 0 {
		return nil, &ValidationError{Field: field, Message: "must not be empty"}
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := ParseIdentifier(id); err != nil {
			return nil, &ValidationError{Field: field, Message: "expected <kind>:<value>, got " + quote(id)}
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

func quote(s string) string {
	return `"` + s + `"`
}

// =============================================================================
// IDENTIFIER INDEX
// =============================================================================

// identifierIndex maps an identifier string to the positions of the records
// that carry it. Positions never move because the ledger never deletes.
type identifierIndex map[string][]int

func (ix identifierIndex) add(pos int, ids []string) {
	for _, id := range ids {
		ix[id] = append(ix[id], pos)
	}
}

// lookup returns the positions matching any of ids, ascending and unique.
func (ix identifierIndex) lookup(ids []string) []int {
	seen := make(map[int]struct{})
	var out []int
	for _, id := range ids {
		for _, pos := range ix[id] {
			if _, ok := seen[pos]; ok {
				continue
			}
			seen[pos] = struct{}{}
			out = append(out, pos)
		}
	}
	sort.Ints(out)
	return out
}
