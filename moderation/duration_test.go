package moderation_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/moderation-engine/moderation"
)

func TestCalcExpiration(t *testing.T) {
	cases := []struct {
		input string
		want  time.Duration
	}{
		{"1 minute", time.Minute},
		{"30 minutes", 30 * time.Minute},
		{"2 hours", 2 * time.Hour},
		{"1.5 days", 36 * time.Hour},
		{"1 week", 7 * day},
		{"2 Months", 60 * day},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			exp, d, err := moderation.CalcExpiration(tc.input, t0)
			require.NoError(t, err)
			assert.Equal(t, tc.want, d)
			assert.Equal(t, moderation.ExpiresAt(t0.Add(tc.want)), exp)
		})
	}
}

func TestCalcExpiration_Permanent(t *testing.T) {
	exp, d, err := moderation.CalcExpiration(" permanent ", t0)
	require.NoError(t, err)
	assert.True(t, exp.IsNever())
	assert.Zero(t, d)
}

func TestCalcExpiration_Invalid(t *testing.T) {
	for _, input := range []string{"", "forever", "5", "five days", "0 days", "-1 hour", "3 fortnights", "0.001 minute"} {
		_, _, err := moderation.CalcExpiration(input, t0)
		assert.ErrorIs(t, err, moderation.ErrValidation, input)
	}
}

func TestCalcExpiration_RejectsBeyondMaxDuration(t *testing.T) {
	for _, input := range []string{"5000 months", "1e20 days", "5300 weeks"} {
		_, _, err := moderation.CalcExpiration(input, t0)
		assert.ErrorIs(t, err, moderation.ErrValidation, input)
	}

	exp, d, err := moderation.CalcExpiration("1200 months", t0)
	require.NoError(t, err)
	assert.Equal(t, 1200*30*day, d)
	assert.Equal(t, moderation.ExpiresAt(t0.Add(d)), exp)
}

func TestMuteExpiration(t *testing.T) {
	exp, err := moderation.MuteExpiration("0", t0)
	require.NoError(t, err)
	assert.True(t, exp.IsNever())

	exp, err = moderation.MuteExpiration("15", t0)
	require.NoError(t, err)
	assert.Equal(t, moderation.ExpiresAt(t0.Add(15*time.Minute)), exp)

	for _, input := range []string{"", "-5", "+5", "1.5", "ten", "999999999999999999", "52560001"} {
		_, err := moderation.MuteExpiration(input, t0)
		assert.ErrorIs(t, err, moderation.ErrValidation, input)
	}
}
