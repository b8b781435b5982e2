// Package events carries ledger changes to collaborators: chat bridges that
// sync roles and game servers that lift restrictions.
package events

import (
	"context"
	"strings"
	"time"

	"github.com/warp/moderation-engine/moderation"
)

// Event types
const (
	EventActionRegistered    = "action.registered"
	EventActionRevoked       = "action.revoked"
	EventIdentifiersReleased = "identifiers.released"
)

// DefaultChannel is the pub/sub channel events are published on.
const DefaultChannel = "moderation.events"

type Event struct {
	Type        string   `json:"type"`
	ActionID    string   `json:"action_id,omitempty"`
	ActionType  string   `json:"action_type,omitempty"`
	Identifiers []string `json:"identifiers"`
	DiscordID   string   `json:"discord_id,omitempty"`
	Author      string   `json:"author,omitempty"`
	Reason      string   `json:"reason,omitempty"`
	RunID       string   `json:"run_id,omitempty"`
	At          int64    `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, channel string, event Event) error
}

// ActionRegistered builds the event for a newly registered action.
func ActionRegistered(rec moderation.Record) Event {
	return Event{
		Type:        EventActionRegistered,
		ActionID:    rec.ID,
		ActionType:  string(rec.Type),
		Identifiers: rec.Identifiers,
		DiscordID:   discordID(rec.Identifiers),
		Author:      rec.Author,
		Reason:      rec.Reason,
		At:          rec.Timestamp,
	}
}

// ActionRevoked builds the event for a revoked action.
func ActionRevoked(rec moderation.Record) Event {
	ev := Event{
		Type:        EventActionRevoked,
		ActionID:    rec.ID,
		ActionType:  string(rec.Type),
		Identifiers: rec.Identifiers,
		DiscordID:   discordID(rec.Identifiers),
	}
	if rec.Revocation.Approver != nil {
		ev.Author = *rec.Revocation.Approver
	}
	if rec.Revocation.Reason != nil {
		ev.Reason = *rec.Revocation.Reason
	}
	if rec.Revocation.Timestamp != nil {
		ev.At = *rec.Revocation.Timestamp
	}
	return ev
}

// IdentifiersReleased builds the event emitted after an expiration sweep.
func IdentifiersReleased(runID string, ids []string, at time.Time) Event {
	return Event{
		Type:        EventIdentifiersReleased,
		Identifiers: ids,
		Author:      moderation.SystemAuthor,
		Reason:      moderation.ExpiredReason,
		RunID:       runID,
		At:          at.Unix(),
	}
}

func discordID(ids []string) string {
	id, ok := moderation.FindIdentifier(ids, moderation.KindDiscord)
	if !ok {
		return ""
	}
	return strings.TrimPrefix(id, moderation.KindDiscord+":")
}
