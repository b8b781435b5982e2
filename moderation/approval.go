/*
approval.go - Approval gate for severe bans

PURPOSE:
  A ban that is permanent, or lasts at least Threshold (7 days by default),
  must be approved by an admin who holds ban-approval rights. If the issuer
  holds those rights themselves the ban goes through unstamped; otherwise
  the issuer names an approver and the approver's name is stamped on the
  record.

The gate never talks to the permission system. The caller resolves the
issuer's capability and the named approver's capabilities and hands the
facts in through ApprovalRequest.
*/
package moderation

import (
	"strings"
	"time"
)

// Permission keys understood by the gate.
const (
	PermAllPermissions = "all_permissions"
	PermApproveBans    = "players.approve_bans"
)

// DefaultApprovalThreshold is the ban length from which approval is required.
const DefaultApprovalThreshold = 7 * 24 * time.Hour

// Capabilities are the permission facts of one admin.
type Capabilities struct {
	Master      bool
	Permissions []string
}

// Has reports whether the admin holds perm. Master admins and
// all_permissions hold everything.
func (c Capabilities) Has(perm string) bool {
	if c.Master {
		return true
	}
	for _, p := range c.Permissions {
		if p == perm || p == PermAllPermissions {
			return true
		}
	}
	return false
}

// CanApproveBans reports whether the admin may approve long bans.
func (c Capabilities) CanApproveBans() bool {
	return c.Has(PermApproveBans)
}

// ApprovalRequest carries the facts the gate needs for one ban.
type ApprovalRequest struct {
	// IssuerCanApprove is true when the issuing admin may self-approve.
	IssuerCanApprove bool

	// ApproverName is the admin chosen to approve on the issuer's behalf.
	ApproverName string

	// ApproverFacts are the named approver's capabilities, nil if the
	// approver is unknown.
	ApproverFacts *Capabilities
}

// ApprovalGate decides whether a ban may be admitted.
type ApprovalGate struct {
	Threshold time.Duration
}

// NewApprovalGate returns a gate with the default threshold.
func NewApprovalGate() ApprovalGate {
	return ApprovalGate{Threshold: DefaultApprovalThreshold}
}

// RequiresApproval reports whether a ban expiring at exp needs sign-off.
func (g ApprovalGate) RequiresApproval(now time.Time, exp Expiration) bool {
	if exp.IsNever() {
		return true
	}
	threshold := g.Threshold
	if threshold <= 0 {
		threshold = DefaultApprovalThreshold
	}
	// Seconds, not time.Duration: bans past ~292 years overflow nanoseconds.
	return int64(exp)-now.Unix() >= int64(threshold/time.Second)
}

// Evaluate returns the approver name to stamp on the record, or "" when no
// approval was needed or the issuer self-approved.
func (g ApprovalGate) Evaluate(now time.Time, exp Expiration, req ApprovalRequest) (string, error) {
	if !g.RequiresApproval(now, exp) || req.IssuerCanApprove {
		return "", nil
	}
	name := strings.TrimSpace(req.ApproverName)
	if name == "" {
		return "", &PermissionError{Kind: MissingApprover}
	}
	if req.ApproverFacts == nil || !req.ApproverFacts.CanApproveBans() {
		return "", &PermissionError{Kind: ApproverLacksPermission, Approver: name}
	}
	return name, nil
}
