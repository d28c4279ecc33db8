package entitlement

// TrialLimits exposes trialLimits to the external test package.
func TrialLimits() map[string]int { return trialLimits }
