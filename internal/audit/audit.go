// Package audit emits pipeline events to a durable trail. Consumers
// downstream (compliance exports, ops dashboards) read the topic; the
// pipeline itself never reads it back.
package audit

import (
	"context"
	"time"

	"enrollsync/pkg/domain"
)

// Action names follow subject.verb so the topic can be filtered coarsely.
const (
	ActionMirrorInserted     = "registration.mirror_inserted"
	ActionMirrorUpdated      = "registration.mirror_updated"
	ActionMirrorDeleted      = "registration.mirror_deleted"
	ActionStatusPropagated   = "registration.status_propagated"
	ActionAccountProvisioned = "guardian.account_provisioned"
	ActionAccountRepaired    = "guardian.account_repaired"
	ActionDuplicateSkipped   = "guardian.duplicate_skipped"
	ActionTrialGranted       = "entitlement.trial_granted"
	ActionWelcomeEnqueued    = "notification.welcome_enqueued"
	ActionSweepCompleted     = "reconcile.sweep_completed"
)

type Event struct {
	Action         string                `json:"action"`
	OrgID          domain.OrgID          `json:"org_id,omitempty"`
	RegistrationID domain.RegistrationID `json:"registration_id,omitempty"`
	GuardianID     domain.GuardianID     `json:"guardian_id,omitempty"`
	Detail         map[string]any        `json:"detail,omitempty"`
	OccurredAt     time.Time             `json:"occurred_at"`
}

// Publisher records events. Implementations must be safe for concurrent
// use and must never block the caller longer than the context allows.
type Publisher interface {
	Publish(ctx context.Context, event Event)
	Close()
}
