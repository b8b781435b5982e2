package moderation

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MaxDuration caps timed bans and mutes. Longer actions must be permanent.
const MaxDuration = 100 * 365 * 24 * time.Hour

var maxSeconds = int64(MaxDuration / time.Second)

// durationUnits maps operator-facing unit words to seconds.
var durationUnits = map[string]int64{
	"minute": 60,
	"hour":   60 * 60,
	"day":    24 * 60 * 60,
	"week":   7 * 24 * 60 * 60,
	"month":  30 * 24 * 60 * 60,
}

// CalcExpiration turns a ban duration typed by an operator ("permanent",
// "2 hours", "1.5 days") into an expiration relative to now. The returned
// duration is zero for permanent bans.
func CalcExpiration(input string, now time.Time) (Expiration, time.Duration, error) {
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "permanent" {
		return Never, 0, nil
	}

	amountStr, unitStr, ok := strings.Cut(input, " ")
	if !ok {
		return Never, 0, &ValidationError{Field: "duration", Message: "expected <amount> <unit> or permanent"}
	}
	unitStr = strings.TrimSuffix(strings.TrimSpace(unitStr), "s")
	unitSeconds, ok := durationUnits[unitStr]
	if !ok {
		return Never, 0, &ValidationError{Field: "duration", Message: "unknown unit " + quote(unitStr)}
	}
	amount, err := decimal.NewFromString(amountStr)
	if err != nil || !amount.IsPositive() {
		return Never, 0, &ValidationError{Field: "duration", Message: "amount must be a positive number"}
	}

	total := amount.Mul(decimal.NewFromInt(unitSeconds)).Floor()
	if total.GreaterThan(decimal.NewFromInt(maxSeconds)) {
		return Never, 0, &ValidationError{Field: "duration", Message: "longer than 100 years, use permanent"}
	}
	seconds := total.IntPart()
	if seconds <= 0 {
		return Never, 0, &ValidationError{Field: "duration", Message: "duration is shorter than one second"}
	}
	return Expiration(now.Unix() + seconds), time.Duration(seconds) * time.Second, nil
}

// MuteExpiration parses a mute length in whole minutes. Zero means permanent.
func MuteExpiration(minutes string, now time.Time) (Expiration, error) {
	minutes = strings.TrimSpace(minutes)
	if minutes == "" || strings.Trim(minutes, "0123456789") != "" {
		return Never, &ValidationError{Field: "duration", Message: "must be a number in minutes"}
	}
	n, err := strconv.ParseInt(minutes, 10, 64)
	if err != nil {
		return Never, &ValidationError{Field: "duration", Message: "must be a number in minutes"}
	}
	if n > maxSeconds/60 {
		return Never, &ValidationError{Field: "duration", Message: "longer than 100 years, use 0 for permanent"}
	}
	if n == 0 {
		return Never, nil
	}
	return Expiration(now.Unix() + n*60), nil
}
