// Package entitlement grants the time-boxed trial attached to a freshly
// provisioned guardian account and seeds the usage-tracking rows the quota
// checker reads. It never calls the quota checker itself.
package entitlement

import (
	"time"

	"enrollsync/pkg/domain"
)

// TierTrial is the tier label written for new accounts.
const TierTrial = "trial"

// Trial is the time-boxed feature grant. Granted at most once per guardian;
// expiry is always start + the configured window.
type Trial struct {
	GuardianID domain.GuardianID
	Tier       string
	StartsAt   time.Time
	ExpiresAt  time.Time
	Active     bool
}

// UsageRow is one metric's tracking row for the quota checker.
type UsageRow struct {
	GuardianID  domain.GuardianID
	Metric      string
	Used        int
	Limit       int
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// trialLimits are the per-metric allowances seeded with a trial grant.
var trialLimits = map[string]int{
	"ai_requests": 100,
	"storage_mb":  512,
}
