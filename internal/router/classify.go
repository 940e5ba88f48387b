// Package router implements the Hybrid Router: classification of capture
// requests and dispatch to one of the two back-ends.
package router

import "github.com/fairyhunter13/hybrid-capture/internal/domain"

// Classify is a pure function of its input (spec §9: "the Router's
// classifier is a pure function of its inputs — it MUST NOT read the store
// or the forge"). Conditions (a), (b), (c) are evaluated in order; the
// first match wins (spec §4.1). This classification is independent of the
// rollout gate.
func Classify(data domain.JobData) domain.Backend {
	if data.TimeRangeDays != nil && *data.TimeRangeDays <= 1 {
		return domain.BackendLowLatency
	}
	if len(data.PRNumbers) > 0 && len(data.PRNumbers) <= 10 {
		return domain.BackendLowLatency
	}
	if data.TriggerSource == domain.TriggerManual {
		return domain.BackendLowLatency
	}
	return domain.BackendBatch
}
