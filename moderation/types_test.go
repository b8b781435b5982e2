package moderation_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/moderation-engine/moderation"
)

func TestRecord_PersistedLayout(t *testing.T) {
	rec := moderation.Record{
		ID:          "M-1",
		Type:        moderation.ActionMute,
		Identifiers: []string{"license:abc"},
		Reason:      "spam",
		Author:      "admin1",
		Timestamp:   1700000000,
	}

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id":"M-1","type":"mute","ids":["license:abc"],"playerName":false,
		"reason":"spam","author":"admin1","timestamp":1700000000,"expiration":false,
		"revocation":{"timestamp":null,"approver":null,"requestor":null,"status":null}
	}`, string(data))
}

func TestRecord_DecodesLegacyDocument(t *testing.T) {
	doc := `{"id":"B-1","type":"ban","ids":["license:a"],"hwids":["hwid:1"],"playerName":"Bob",
		"reason":"cheat","author":"admin1","timestamp":10,"expiration":20,"approver":"head1",
		"revocation":{"timestamp":15,"approver":"admin2","requestor":null,"status":"approved"}}`

	var rec moderation.Record
	require.NoError(t, json.Unmarshal([]byte(doc), &rec))
	assert.Equal(t, moderation.Expiration(20), rec.Expiration)
	assert.Equal(t, moderation.PlayerName("Bob"), rec.PlayerName)
	assert.Equal(t, "head1", rec.Approver)
	assert.True(t, rec.IsRevoked())
	assert.Equal(t, int64(15), *rec.Revocation.Timestamp)
}
