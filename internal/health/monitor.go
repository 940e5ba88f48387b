package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fairyhunter13/hybrid-capture/internal/domain"
	"github.com/fairyhunter13/hybrid-capture/internal/rollout"
)

// CheckType selects which signals a health check inspects (spec §6:
// `CHECK_TYPE ∈ {full, error_rates, metrics_only}`).
type CheckType string

const (
	CheckFull        CheckType = "full"
	CheckErrorRates  CheckType = "error_rates"
	CheckMetricsOnly CheckType = "metrics_only"
)

// recentSampleSize bounds how many recently-started jobs per status the
// monitor inspects when estimating the in-flight error rate.
const recentSampleSize = 200

// Report is the JSON shape written to ArtifactDir after every check.
type Report struct {
	CheckType       CheckType `json:"checkType"`
	Timestamp       time.Time `json:"timestamp"`
	Feature         string    `json:"feature"`
	SampledJobs     int       `json:"sampledJobs"`
	FailedJobs      int       `json:"failedJobs"`
	ErrorRatePercent float64  `json:"errorRatePercent"`
	Threshold       float64   `json:"thresholdPercent"`
	RolledBack      bool      `json:"rolledBack"`
	Reason          string    `json:"reason,omitempty"`
}

// Monitor reads in-flight job error rates and triggers an automated
// rollback when the critical threshold is exceeded.
type Monitor struct {
	jobs        domain.JobRepository
	controller  *rollout.Controller
	threshold   float64
	artifactDir string
	feature     string
	log         *slog.Logger
}

// NewMonitor builds a Monitor wired against the job store and rollout controller.
func NewMonitor(jobs domain.JobRepository, controller *rollout.Controller, feature string, criticalErrorRatePercent float64, artifactDir string, log *slog.Logger) *Monitor {
	if feature == "" {
		feature = domain.DefaultFeature
	}
	return &Monitor{
		jobs:        jobs,
		controller:  controller,
		threshold:   criticalErrorRatePercent,
		artifactDir: artifactDir,
		feature:     feature,
		log:         log,
	}
}

// Check runs one health check, rolling back the feature if the observed
// error rate exceeds the threshold (or force is set), and always writes an
// incident-report artifact summarizing what it saw.
func (m *Monitor) Check(ctx context.Context, checkType CheckType, force bool) (Report, error) {
	report := Report{
		CheckType: checkType,
		Timestamp: time.Now(),
		Feature:   m.feature,
		Threshold: m.threshold,
	}

	if checkType == CheckMetricsOnly {
		return report, m.writeArtifact(report)
	}

	failed, total, err := m.sampleErrorRate(ctx)
	if err != nil {
		return report, fmt.Errorf("op=health.Check: %w", err)
	}
	report.SampledJobs = total
	report.FailedJobs = failed
	if total > 0 {
		report.ErrorRatePercent = 100 * float64(failed) / float64(total)
	}

	if (report.ErrorRatePercent > m.threshold || force) && m.controller != nil {
		reason := fmt.Sprintf("error rate %.2f%% exceeded threshold %.2f%%", report.ErrorRatePercent, m.threshold)
		if force {
			reason = "forced health check rollback"
		}
		if _, err := m.controller.Rollback(ctx, m.feature, reason); err != nil {
			return report, fmt.Errorf("op=health.Check rollback: %w", err)
		}
		report.RolledBack = true
		report.Reason = reason
		if m.log != nil {
			m.log.Warn("health monitor triggered rollback", "feature", m.feature, "reason", reason)
		}
	}

	return report, m.writeArtifact(report)
}

// sampleErrorRate estimates the recent in-flight error rate from the most
// recently started failed vs. completed jobs. ListByStatus is queried with
// startedBefore=now, relying on the repository's natural most-recent-first
// ordering to keep the sample "recent" rather than exhaustive.
func (m *Monitor) sampleErrorRate(ctx context.Context) (failed, total int, err error) {
	now := time.Now()

	failedJobs, err := m.jobs.ListByStatus(ctx, domain.JobFailed, now, recentSampleSize)
	if err != nil {
		return 0, 0, fmt.Errorf("list failed jobs: %w", err)
	}
	completedJobs, err := m.jobs.ListByStatus(ctx, domain.JobCompleted, now, recentSampleSize)
	if err != nil {
		return 0, 0, fmt.Errorf("list completed jobs: %w", err)
	}

	return len(failedJobs), len(failedJobs) + len(completedJobs), nil
}

func (m *Monitor) writeArtifact(report Report) error {
	if m.artifactDir == "" {
		return nil
	}
	if err := os.MkdirAll(m.artifactDir, 0o755); err != nil {
		return fmt.Errorf("op=health.writeArtifact mkdir: %w", err)
	}

	name := fmt.Sprintf("health-check-%d.json", report.Timestamp.UnixNano())
	path := filepath.Join(m.artifactDir, name)

	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("op=health.writeArtifact marshal: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("op=health.writeArtifact write: %w", err)
	}
	return nil
}
