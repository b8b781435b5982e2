package events_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/moderation-engine/events"
	"github.com/warp/moderation-engine/moderation"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestActionRevoked_CarriesRevocation(t *testing.T) {
	approver, reason, at := "admin2", "appeal", int64(42)
	rec := moderation.Record{
		ID:          "M-1",
		Type:        moderation.ActionMute,
		Identifiers: []string{"license:a", "discord:123456"},
		Author:      "admin1",
		Revocation: moderation.Revocation{
			Timestamp: &at, Approver: &approver, Reason: &reason,
			Status: moderation.RevocationApproved,
		},
	}

	ev := events.ActionRevoked(rec)
	assert.Equal(t, events.EventActionRevoked, ev.Type)
	assert.Equal(t, "123456", ev.DiscordID)
	assert.Equal(t, "admin2", ev.Author)
	assert.Equal(t, "appeal", ev.Reason)
	assert.Equal(t, at, ev.At)
}

func TestIdentifiersReleased_Wire(t *testing.T) {
	ev := events.IdentifiersReleased("run-1", []string{"license:a"}, time.Unix(100, 0))

	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"identifiers.released","identifiers":["license:a"],
		"author":"SYSTEM","reason":"Expired","run_id":"run-1","at":100}`, string(data))
}

func TestLogPublisher(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	pub := events.NewLogPublisher(zap.New(core))

	ev := events.ActionRegistered(moderation.Record{ID: "W-1", Type: moderation.ActionWarn, Identifiers: []string{"license:a"}})
	require.NoError(t, pub.Publish(context.Background(), events.DefaultChannel, ev))

	entries := logs.FilterMessage("event").All()
	require.Len(t, entries, 1)
	assert.Equal(t, events.EventActionRegistered, entries[0].ContextMap()["type"])
	assert.Equal(t, "W-1", entries[0].ContextMap()["action_id"])
}

func TestRedisPublisher_ClosedClientFails(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	require.NoError(t, client.Close())
	pub := events.NewRedisPublisher(client, zap.NewNop())

	err := pub.Publish(context.Background(), events.DefaultChannel, events.Event{Type: events.EventActionRevoked})
	assert.ErrorIs(t, err, redis.ErrClosed)
}
