package cron

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/devashish08/chatbot-api/model"
)

// SweepExpiredHistory deletes messages older than the retention horizon, then
// sessions left empty past the horizon. Runs daily; a failed run is just
// logged, the next scheduled run retries the same work since sweeps are
// idempotent.
func (m *CronManager) SweepExpiredHistory() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	jobName := "sweep_expired_history"

	horizon := time.Now().AddDate(0, 0, -m.retentionDays)
	result, err := m.store.SweepExpired(ctx, horizon)
	if err != nil {
		m.logJobError(jobName, fmt.Errorf("sweep failed: %w", err))
		return
	}

	m.logJobComplete(jobName, fmt.Sprintf(
		"Deleted %d messages and %d sessions older than %s",
		result.MessagesDeleted, result.SessionsDeleted, horizon.Format(time.RFC3339),
	))
}

// CleanupCronLogs removes cron job logs older than 90 days
func (m *CronManager) CleanupCronLogs() {
	jobName := "cleanup_cron_logs"

	cutoff := time.Now().Add(-90 * 24 * time.Hour)
	result := m.db.Where("created_at < ?", cutoff).Delete(&model.CronJobLog{})
	if result.Error != nil {
		m.logJobError(jobName, result.Error)
		return
	}

	log.Printf("[CRON] Cleaned %d old cron logs", result.RowsAffected)
	m.logJobComplete(jobName, fmt.Sprintf("Cleaned %d old cron logs", result.RowsAffected))
}
