/*
handlers.go - HTTP API handlers for the moderation ledger

PURPOSE:
  Exposes the moderation ledger via REST API. Handles HTTP request/response,
  permission checks and JSON serialization, and delegates to the ledger.

ENDPOINTS:
  Players:
    POST   /api/players/actions/{action}  Ban, mute, warn, flag, wager blacklist
    GET    /api/players/status            Mute / wager blacklist status

  Actions:
    GET    /api/actions                   Raw export, or find by identifiers
    GET    /api/actions/{id}              Single action
    POST   /api/actions/{id}/revoke       Approve a revocation
    POST   /api/actions/{id}/revoke-request  Ask for a revocation

  Admin:
    POST   /api/admin/sweep               Run the expiration sweep now
    POST   /api/admin/flush               Force a durable write

AUTHENTICATION:
  The panel authenticates operators and forwards the admin name in the
  X-Admin-Name header. Permissions come from the admin directory. Every
  /api route requires a known admin, reads included.

ERROR HANDLING:
  Errors are returned as JSON {error, kind, details}:
  - 400: Validation errors, invalid input
  - 401: Missing admin header
  - 403: Missing permission, approval gate rejections
  - 404: Action not found
  - 409: Already revoked
  - 503: Ledger not ready, persistence failure

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scheduler.go: Expiration sweep scheduler
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/moderation-engine/events"
	"github.com/warp/moderation-engine/moderation"
	"go.uber.org/zap"
)

// AdminHeader carries the authenticated operator name.
const AdminHeader = "X-Admin-Name"

// DefaultReason is used when an operator leaves the reason blank.
const DefaultReason = "no reason provided"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger    *moderation.Ledger
	Admins    PermissionProvider
	Sweeper   *SweepScheduler
	Publisher events.Publisher
	Channel   string
	Now       func() time.Time
	Logger    *zap.Logger
}

// NewHandler creates a new handler. publisher may be nil.
func NewHandler(ledger *moderation.Ledger, admins PermissionProvider, sweeper *SweepScheduler, publisher events.Publisher, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Ledger:    ledger,
		Admins:    admins,
		Sweeper:   sweeper,
		Publisher: publisher,
		Channel:   events.DefaultChannel,
		Now:       time.Now,
		Logger:    log,
	}
}

// operator is the authenticated admin of a request.
type operator struct {
	name string
	caps moderation.Capabilities
}

// authenticate resolves the admin header, writing 401/403 on failure.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (operator, bool) {
	name := strings.TrimSpace(r.Header.Get(AdminHeader))
	if name == "" {
		writeError(w, http.StatusUnauthorized, "missing "+AdminHeader+" header", nil)
		return operator{}, false
	}
	caps, ok := h.Admins.Lookup(name)
	if !ok {
		writeError(w, http.StatusForbidden, "unknown admin", moderation.ErrPermission)
		return operator{}, false
	}
	return operator{name: name, caps: caps}, true
}

func (h *Handler) authorize(w http.ResponseWriter, op operator, perm string) bool {
	if op.caps.Has(perm) {
		return true
	}
	writeError(w, http.StatusForbidden, "You don't have permission to execute this action.", moderation.ErrPermission)
	return false
}

// =============================================================================
// PLAYER HANDLERS
// =============================================================================

// PlayerAction registers or revokes an action against a player.
func (h *Handler) PlayerAction(w http.ResponseWriter, r *http.Request) {
	actionType, err := moderation.ParseActionType(chi.URLParam(r, "action"))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	op, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req PlayerActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.Revoke {
		h.revokeActive(w, r, op, actionType, req)
		return
	}
	if !h.authorize(w, op, registerPermission(actionType)) {
		return
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = DefaultReason
	}
	reg := moderation.Registration{
		Type:        actionType,
		Identifiers: req.Identifiers,
		Author:      op.name,
		Reason:      reason,
		PlayerName:  req.PlayerName,
	}

	now := h.Now()
	switch actionType {
	case moderation.ActionBan:
		exp, _, err := moderation.CalcExpiration(req.Duration, now)
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		reg.Expiration = exp
		reg.HardwareIDs = req.HardwareIDs
		reg.Approval = h.approvalFor(op, req.Approver)
	case moderation.ActionMute:
		exp, err := moderation.MuteExpiration(req.Duration, now)
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		reg.Expiration = exp
	}

	id, err := h.Ledger.Register(reg)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	rec, err := h.Ledger.Find(id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	h.publish(r.Context(), events.ActionRegistered(rec))

	writeJSON(w, http.StatusCreated, ActionResponse{Success: true, Action: &rec})
}

// revokeActive lifts the oldest unrevoked action of the given type that
// matches the player's identifiers.
func (h *Handler) revokeActive(w http.ResponseWriter, r *http.Request, op operator, t moderation.ActionType, req PlayerActionRequest) {
	switch t {
	case moderation.ActionMute, moderation.ActionFlag, moderation.ActionWagerBlacklist:
	default:
		writeError(w, http.StatusBadRequest, "revoke by player is only supported for mute, flag and wagerblacklist; use /api/actions/{id}/revoke",
			&moderation.ValidationError{Field: "revoke", Message: "not supported for " + string(t)})
		return
	}
	if !h.authorize(w, op, revokePermission(t)) {
		return
	}

	active, err := h.Ledger.FindMany(req.Identifiers, moderation.OfType(t), moderation.NotRevoked())
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	if len(active) == 0 {
		writeError(w, http.StatusNotFound, "This player has no active "+string(t)+".", moderation.ErrNotFound)
		return
	}

	rec, err := h.Ledger.ApproveRevoke(active[0].ID, op.name, req.Reason)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	h.publish(r.Context(), events.ActionRevoked(rec))

	writeJSON(w, http.StatusOK, ActionResponse{Success: true, Action: &rec})
}

// approvalFor gathers the facts the ledger's approval gate needs.
func (h *Handler) approvalFor(op operator, approverName string) *moderation.ApprovalRequest {
	req := &moderation.ApprovalRequest{
		IssuerCanApprove: op.caps.CanApproveBans(),
		ApproverName:     strings.TrimSpace(approverName),
	}
	if req.ApproverName != "" {
		if caps, ok := h.Admins.Lookup(req.ApproverName); ok {
			req.ApproverFacts = &caps
		}
	}
	return req
}

// PlayerStatus reports whether a license is muted or wager blacklisted.
func (h *Handler) PlayerStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authenticate(w, r); !ok {
		return
	}
	license := strings.TrimSpace(r.URL.Query().Get("license"))
	if license == "" {
		writeLedgerError(w, &moderation.ValidationError{Field: "license", Message: "must not be empty"})
		return
	}
	if !strings.HasPrefix(license, moderation.KindLicense+":") {
		license = moderation.KindLicense + ":" + license
	}
	ids := []string{license}

	muted, err := h.hasActive(ids, moderation.ActionMute)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	blacklisted, err := h.hasActive(ids, moderation.ActionWagerBlacklist)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, PlayerStatusResponse{IsMuted: muted, IsWagerBlacklisted: blacklisted})
}

func (h *Handler) hasActive(ids []string, t moderation.ActionType) (bool, error) {
	_, err := h.Ledger.ActiveAction(ids, t)
	if moderation.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

// =============================================================================
// ACTION HANDLERS
// =============================================================================

// ListActions returns the raw collection, or the actions matching ?ids=.
func (h *Handler) ListActions(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authenticate(w, r); !ok {
		return
	}
	q := r.URL.Query()
	ids := splitList(q.Get("ids"))

	var (
		recs []moderation.Record
		err  error
	)
	if len(ids) == 0 {
		recs, err = h.Ledger.Raw()
	} else {
		var preds []moderation.Predicate
		if t := q.Get("type"); t != "" {
			actionType, perr := moderation.ParseActionType(t)
			if perr != nil {
				writeLedgerError(w, perr)
				return
			}
			preds = append(preds, moderation.OfType(actionType))
		}
		if q.Get("active") == "true" {
			preds = append(preds, moderation.ActiveAt(h.Now()))
		}
		recs, err = h.Ledger.FindMany(ids, preds...)
	}
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ActionsResponse{Actions: recs, Count: len(recs)})
}

// GetAction returns a single action.
func (h *Handler) GetAction(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authenticate(w, r); !ok {
		return
	}
	rec, err := h.Ledger.Find(chi.URLParam(r, "id"))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// RevokeAction approves the revocation of an action by id.
func (h *Handler) RevokeAction(w http.ResponseWriter, r *http.Request) {
	op, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	req, ok := decodeRevoke(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	existing, err := h.Ledger.Find(id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	if !h.authorize(w, op, revokePermission(existing.Type)) {
		return
	}

	rec, err := h.Ledger.ApproveRevoke(id, op.name, req.Reason)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	h.publish(r.Context(), events.ActionRevoked(rec))

	writeJSON(w, http.StatusOK, rec)
}

// RequestRevoke records a revocation request. Any known admin may ask.
func (h *Handler) RequestRevoke(w http.ResponseWriter, r *http.Request) {
	op, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	req, ok := decodeRevoke(w, r)
	if !ok {
		return
	}

	rec, err := h.Ledger.RequestRevoke(chi.URLParam(r, "id"), op.name, req.Reason)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerSweep runs the expiration sweep immediately.
func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	op, ok := h.authenticate(w, r)
	if !ok || !h.authorize(w, op, moderation.PermAllPermissions) {
		return
	}

	res, err := h.Sweeper.RunNow(r.Context())
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SweepResponse{RunID: res.RunID, At: res.At.Unix(), Released: res.Released})
}

// TriggerFlush writes pending changes and reports whether they are durable.
func (h *Handler) TriggerFlush(w http.ResponseWriter, r *http.Request) {
	op, ok := h.authenticate(w, r)
	if !ok || !h.authorize(w, op, moderation.PermAllPermissions) {
		return
	}

	if err := h.Ledger.Sync(r.Context()); err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"flushed": true})
}

// Health reports the ledger lifecycle and persistence state.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	sched := h.Ledger.Scheduler()
	resp := HealthResponse{
		State:    h.Ledger.State().String(),
		Records:  h.Ledger.Len(),
		Dirty:    sched.Dirty(),
		Pending:  sched.Pending().String(),
		Unusable: sched.Unusable(),
	}
	if err := sched.LastError(); err != nil {
		resp.LastError = err.Error()
	}

	status := http.StatusOK
	if h.Ledger.State() != moderation.StateReady || resp.Unusable {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

func registerPermission(t moderation.ActionType) string {
	switch t {
	case moderation.ActionMute:
		return PermMute
	case moderation.ActionWarn:
		return PermWarn
	case moderation.ActionWagerBlacklist:
		return PermWagerStaff
	}
	// Bans and flags share the ban permission.
	return PermBan
}

func revokePermission(t moderation.ActionType) string {
	if t == moderation.ActionWagerBlacklist {
		return PermWagerHead
	}
	return registerPermission(t)
}

func decodeRevoke(w http.ResponseWriter, r *http.Request) (RevokeRequest, bool) {
	var req RevokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return RevokeRequest{}, false
	}
	return req, true
}

func (h *Handler) publish(ctx context.Context, ev events.Event) {
	if h.Publisher == nil {
		return
	}
	if err := h.Publisher.Publish(ctx, h.Channel, ev); err != nil {
		h.Logger.Warn("failed to publish event",
			zap.String("type", ev.Type),
			zap.String("action_id", ev.ActionID),
			zap.Error(err),
		)
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message, Kind: moderation.KindOf(err)}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeLedgerError maps a ledger error to its status code.
func writeLedgerError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch moderation.KindOf(err) {
	case moderation.KindValidation:
		status = http.StatusBadRequest
	case moderation.KindPermission, moderation.KindMissingApprover, moderation.KindApproverLacksPermission:
		status = http.StatusForbidden
	case moderation.KindNotFound:
		status = http.StatusNotFound
	case moderation.KindAlreadyRevoked:
		status = http.StatusConflict
	case moderation.KindStoreNotReady, moderation.KindPersistence:
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, err.Error(), err)
}
