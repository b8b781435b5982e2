/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures of the HTTP surface. Action records are
  returned in their persisted document shape (moderation.Record), so
  clients see exactly what the panel stores.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *Response: Response wrappers

VALIDATION:
  Validation is done by the ledger, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - moderation/types.go: Record layout
*/
package api

import "github.com/warp/moderation-engine/moderation"

// =============================================================================
// REQUEST TYPES
// =============================================================================

// PlayerActionRequest is the body of POST /api/players/actions/{action}.
type PlayerActionRequest struct {
	Identifiers []string `json:"identifiers"`
	HardwareIDs []string `json:"hwids,omitempty"`
	PlayerName  string   `json:"player_name,omitempty"`
	Reason      string   `json:"reason"`

	// Duration is "<amount> <unit>" or "permanent" for bans, whole minutes
	// for mutes ("0" is permanent).
	Duration string `json:"duration,omitempty"`

	// Approver names the admin approving a long ban.
	Approver string `json:"approver,omitempty"`

	// Revoke lifts the first active mute, flag or wager blacklist instead
	// of registering one.
	Revoke bool `json:"revoke,omitempty"`
}

// RevokeRequest is the body of the revoke and revoke-request routes.
type RevokeRequest struct {
	Reason string `json:"reason,omitempty"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ActionResponse answers a successful player action.
type ActionResponse struct {
	Success bool               `json:"success"`
	Action  *moderation.Record `json:"action,omitempty"`
}

// ActionsResponse wraps a list of records.
type ActionsResponse struct {
	Actions []moderation.Record `json:"actions"`
	Count   int                 `json:"count"`
}

// PlayerStatusResponse answers GET /api/players/status.
type PlayerStatusResponse struct {
	IsMuted            bool `json:"is_muted"`
	IsWagerBlacklisted bool `json:"is_wager_blacklisted"`
}

// SweepResponse answers POST /api/admin/sweep.
type SweepResponse struct {
	RunID    string   `json:"run_id"`
	At       int64    `json:"at"`
	Released []string `json:"released"`
}

// HealthResponse answers GET /healthz.
type HealthResponse struct {
	State     string `json:"state"`
	Records   int    `json:"records"`
	Dirty     bool   `json:"dirty"`
	Pending   string `json:"pending"`
	Unusable  bool   `json:"unusable"`
	LastError string `json:"last_error,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string          `json:"error"`
	Kind    moderation.Kind `json:"kind,omitempty"`
	Details any             `json:"details,omitempty"`
}
