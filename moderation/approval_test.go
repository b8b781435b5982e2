package moderation_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/moderation-engine/moderation"
)

const day = 24 * time.Hour

func TestApprovalGate_RequiresApproval(t *testing.T) {
	g := moderation.NewApprovalGate()

	cases := []struct {
		name string
		exp  moderation.Expiration
		want bool
	}{
		{"permanent", moderation.Never, true},
		{"one hour", moderation.ExpiresAt(t0.Add(time.Hour)), false},
		// Admitted at the seven day default; see TestRegisterBan_CustomThreshold.
		{"six days", moderation.ExpiresAt(t0.Add(6 * day)), false},
		{"exactly seven days", moderation.ExpiresAt(t0.Add(7 * day)), true},
		{"one month", moderation.ExpiresAt(t0.Add(30 * day)), true},
		{"five thousand months", moderation.Expiration(t0.Unix() + 5000*30*86400), true},
		{"far future", moderation.Expiration(math.MaxInt64), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, g.RequiresApproval(t0, tc.exp))
		})
	}
}

func TestCapabilities_CanApproveBans(t *testing.T) {
	assert.True(t, moderation.Capabilities{Master: true}.CanApproveBans())
	assert.True(t, moderation.Capabilities{Permissions: []string{"all_permissions"}}.CanApproveBans())
	assert.True(t, moderation.Capabilities{Permissions: []string{"players.ban", "players.approve_bans"}}.CanApproveBans())
	assert.False(t, moderation.Capabilities{Permissions: []string{"players.ban"}}.CanApproveBans())
	assert.False(t, moderation.Capabilities{}.CanApproveBans())
}

func TestRegisterBan_LongBanWithoutApprover_Rejected(t *testing.T) {
	// GIVEN: A non-elevated issuer with no approver
	l, _ := newTestLedger(t)

	// WHEN: Issuing an eight day ban
	_, err := l.RegisterBan([]string{"license:a"}, "mod1", "cheat", moderation.ExpiresAt(t0.Add(8*day)), "", nil,
		&moderation.ApprovalRequest{})

	// THEN: The gate asks for an approver and nothing is stored
	var perr *moderation.PermissionError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, moderation.MissingApprover, perr.Kind)
	assert.ErrorIs(t, err, moderation.ErrMissingApprover)
	assert.Equal(t, moderation.KindMissingApprover, moderation.KindOf(err))
	assert.Equal(t, 0, l.Len())
	assert.False(t, l.Scheduler().Dirty())
}

func TestApprovalGate_CenturiesLongBanNeedsApprover(t *testing.T) {
	g := moderation.NewApprovalGate()
	exp := moderation.Expiration(t0.Unix() + 5000*30*86400)

	_, err := g.Evaluate(t0, exp, moderation.ApprovalRequest{})
	assert.ErrorIs(t, err, moderation.ErrMissingApprover)
}

// A six day ban is below the seven day default, so "6 days without an
// approver fails" only holds once the threshold is lowered.
func TestRegisterBan_CustomThreshold(t *testing.T) {
	l, _ := newTestLedger(t, moderation.WithApprovalGate(moderation.ApprovalGate{Threshold: 5 * day}))

	_, err := l.RegisterBan([]string{"license:a"}, "mod1", "cheat", moderation.ExpiresAt(t0.Add(6*day)), "", nil, nil)
	assert.ErrorIs(t, err, moderation.ErrMissingApprover)
}

func TestRegisterBan_ApproverWithoutRights_Rejected(t *testing.T) {
	l, _ := newTestLedger(t)

	for _, facts := range []*moderation.Capabilities{nil, {Permissions: []string{"players.ban"}}} {
		_, err := l.RegisterBan([]string{"license:a"}, "mod1", "cheat", moderation.Never, "", nil,
			&moderation.ApprovalRequest{ApproverName: "mod2", ApproverFacts: facts})

		var perr *moderation.PermissionError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, moderation.ApproverLacksPermission, perr.Kind)
		assert.Equal(t, "mod2", perr.Approver)
		assert.ErrorIs(t, err, moderation.ErrPermission)
	}
	assert.Equal(t, 0, l.Len())
}

func TestRegisterBan_ValidApproverIsStamped(t *testing.T) {
	l, _ := newTestLedger(t)

	id, err := l.RegisterBan([]string{"license:a"}, "mod1", "cheat", moderation.Never, "Bob", []string{"hwid:abc"},
		&moderation.ApprovalRequest{
			ApproverName:  "head1",
			ApproverFacts: &moderation.Capabilities{Permissions: []string{moderation.PermApproveBans}},
		})
	require.NoError(t, err)

	rec, err := l.Find(id)
	require.NoError(t, err)
	assert.Equal(t, "head1", rec.Approver)
	assert.Equal(t, "mod1", rec.Author)
	assert.Equal(t, []string{"hwid:abc"}, rec.HardwareIDs)
}

func TestRegisterBan_SelfApprovingIssuer(t *testing.T) {
	l, _ := newTestLedger(t)

	id, err := l.RegisterBan([]string{"license:a"}, "head1", "cheat", moderation.Never, "", nil,
		&moderation.ApprovalRequest{IssuerCanApprove: true, ApproverName: "ignored"})
	require.NoError(t, err)

	rec, err := l.Find(id)
	require.NoError(t, err)
	assert.Empty(t, rec.Approver)
}

func TestRegisterBan_ShortBanSkipsGate(t *testing.T) {
	l, _ := newTestLedger(t)

	id, err := l.RegisterBan([]string{"license:a"}, "mod1", "cheat", moderation.ExpiresAt(t0.Add(2*day)), "", nil,
		&moderation.ApprovalRequest{ApproverName: "mod2"})
	require.NoError(t, err)

	rec, err := l.Find(id)
	require.NoError(t, err)
	assert.Empty(t, rec.Approver, "approver is only stamped on escalated bans")
}
