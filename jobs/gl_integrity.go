package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/finledger/internal/accounting/integrity"
	jobmetrics "github.com/odyssey-erp/finledger/internal/jobs"
)

// TaskGLIntegrity recomputes ledger balances and reports discrepancies.
const TaskGLIntegrity = "ledger:gl_integrity"

// GLIntegrityPayload limits the check to one company; empty means all.
type GLIntegrityPayload struct {
	CompanyID string `json:"company_id,omitempty"`
}

// NewGLIntegrityTask constructs an Asynq task.
func NewGLIntegrityTask(companyID string) (*asynq.Task, error) {
	data, err := json.Marshal(GLIntegrityPayload{CompanyID: strings.TrimSpace(companyID)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGLIntegrity, data, asynq.Queue(QueueLedger), asynq.MaxRetry(3)), nil
}

// IntegrityChecker is satisfied by *integrity.Checker.
type IntegrityChecker interface {
	Companies(ctx context.Context) ([]string, error)
	Check(ctx context.Context, companyID string) (integrity.Report, error)
}

// GLIntegrityJob runs the ledger integrity check.
type GLIntegrityJob struct {
	checker IntegrityChecker
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewGLIntegrityJob wires the integrity job handler.
func NewGLIntegrityJob(checker IntegrityChecker, logger *slog.Logger, metrics *jobmetrics.Metrics) *GLIntegrityJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &GLIntegrityJob{checker: checker, logger: logger, metrics: metrics}
}

// Handle executes the check. A company that fails to load does not stop the
// others; the first such error is returned so asynq retries the task.
func (j *GLIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.checker == nil {
		return errors.New("gl integrity: handler not configured")
	}
	var payload GLIntegrityPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	start := time.Now()
	tracker := j.metrics.Track(TaskGLIntegrity)

	companies := []string{payload.CompanyID}
	if payload.CompanyID == "" {
		var err error
		companies, err = j.checker.Companies(ctx)
		if err != nil {
			j.logger.Error("list ledger companies", slog.Any("error", err))
			return tracker.End(err)
		}
	}

	var (
		firstErr  error
		anomalies int
	)
	for _, companyID := range companies {
		report, err := j.checker.Check(ctx, companyID)
		if err != nil {
			j.logger.Error("integrity check failed", slog.String("company_id", companyID), slog.Any("error", err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		byKind := map[integrity.AnomalyKind]int{}
		for _, a := range report.Anomalies {
			j.logger.Warn("ledger anomaly detected",
				slog.String("company_id", companyID),
				slog.String("kind", string(a.Kind)),
				slog.String("account_id", a.AccountID),
				slog.Int64("journal_id", a.JournalID),
				slog.String("expected", a.Expected.String()),
				slog.String("actual", a.Actual.String()))
			byKind[a.Kind]++
		}
		for kind, n := range byKind {
			j.metrics.AddAnomalies(string(kind), companyID, n)
		}
		anomalies += len(report.Anomalies)
	}

	j.logger.Info("completed gl integrity check",
		slog.Int("companies", len(companies)),
		slog.Int("anomalies", anomalies),
		slog.Duration("duration", time.Since(start)))
	return tracker.End(firstErr)
}
