package periods

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/finledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/finledger/internal/shared"
)

type fakeRepo struct {
	periods map[int64]Period
}

func newFakeRepo(periods ...Period) *fakeRepo {
	repo := &fakeRepo{periods: map[int64]Period{}}
	for _, p := range periods {
		repo.periods[p.ID] = p
	}
	return repo
}

func (f *fakeRepo) ListOpenCovering(_ context.Context, companyID string, date time.Time) ([]Period, error) {
	var out []Period
	for _, p := range f.sorted() {
		if p.CompanyID == companyID && p.Status == PeriodStatusOpen && p.Contains(date) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRepo) List(_ context.Context, companyID string) ([]Period, error) {
	var out []Period
	for _, p := range f.sorted() {
		if p.CompanyID == companyID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRepo) LockCompany(context.Context, string) error { return nil }

func (f *fakeRepo) GetForUpdate(_ context.Context, companyID string, periodID int64) (Period, error) {
	p, ok := f.periods[periodID]
	if !ok || p.CompanyID != companyID {
		return Period{}, shared.ErrPeriodNotFound
	}
	return p, nil
}

func (f *fakeRepo) CloseOpenExcept(_ context.Context, companyID string, exceptID int64, actor string, at time.Time) ([]int64, error) {
	var ids []int64
	for id, p := range f.periods {
		if p.CompanyID == companyID && p.Status == PeriodStatusOpen && id != exceptID {
			p.Status = PeriodStatusClosed
			p.ClosedAt = &at
			p.ClosedBy = &actor
			f.periods[id] = p
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeRepo) SetStatus(_ context.Context, companyID string, periodID int64, status PeriodStatus, actor string, at time.Time) (Period, error) {
	p, ok := f.periods[periodID]
	if !ok || p.CompanyID != companyID {
		return Period{}, shared.ErrPeriodNotFound
	}
	p.Status = status
	switch status {
	case PeriodStatusOpen:
		p.OpenedAt, p.OpenedBy = &at, &actor
		p.ClosedAt, p.ClosedBy = nil, nil
	case PeriodStatusClosed:
		p.ClosedAt, p.ClosedBy = &at, &actor
	}
	f.periods[periodID] = p
	return p, nil
}

func (f *fakeRepo) sorted() []Period {
	out := make([]Period, 0, len(f.periods))
	for _, p := range f.periods {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type fakeRunner struct {
	repo *fakeRepo
}

func (r fakeRunner) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, r.repo)
}

type recordingAudit struct {
	logs []internalShared.AuditLog
}

func (a *recordingAudit) Record(_ context.Context, log internalShared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func period(id int64, start, end string, status PeriodStatus) Period {
	return Period{CompanyID: "C1", ID: id, Name: start[:7], StartDate: day(start), EndDate: day(end), Status: status}
}

func TestValidateDate(t *testing.T) {
	repo := newFakeRepo(
		period(1, "2024-01-01", "2024-01-31", PeriodStatusClosed),
		period(2, "2024-02-01", "2024-02-29", PeriodStatusOpen),
		period(3, "2024-03-01", "2024-03-31", PeriodStatusFuture),
	)
	ctx := context.Background()

	got, err := ValidateDate(ctx, repo, "C1", day("2024-02-15"))
	require.NoError(t, err)
	require.Equal(t, int64(2), got.ID)

	_, err = ValidateDate(ctx, repo, "C1", time.Date(2024, 2, 29, 23, 59, 0, 0, time.UTC))
	require.NoError(t, err)

	for _, date := range []string{"2024-01-15", "2024-03-01", "2025-01-01"} {
		_, err = ValidateDate(ctx, repo, "C1", day(date))
		require.ErrorIs(t, err, shared.ErrPeriodClosed, date)
	}

	_, err = ValidateDate(ctx, repo, "C2", day("2024-02-15"))
	require.ErrorIs(t, err, shared.ErrPeriodClosed)
}

func TestValidateDateRejectsOverlappingOpenPeriods(t *testing.T) {
	repo := newFakeRepo(
		period(1, "2024-02-01", "2024-02-29", PeriodStatusOpen),
		period(2, "2024-02-10", "2024-03-10", PeriodStatusOpen),
	)
	_, err := ValidateDate(context.Background(), repo, "C1", day("2024-02-15"))
	require.ErrorIs(t, err, shared.ErrPeriodClosed)
}

func TestOpenPeriodClosesOthers(t *testing.T) {
	repo := newFakeRepo(
		period(1, "2024-01-01", "2024-01-31", PeriodStatusOpen),
		period(2, "2024-02-01", "2024-02-29", PeriodStatusFuture),
	)
	audit := &recordingAudit{}
	svc := NewService(fakeRunner{repo: repo}, audit, nil)
	now := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	svc.WithNow(func() time.Time { return now })

	opened, err := svc.OpenPeriod(context.Background(), "C1", 2, "controller")
	require.NoError(t, err)
	require.Equal(t, PeriodStatusOpen, opened.Status)
	require.NotNil(t, opened.OpenedBy)
	require.Equal(t, "controller", *opened.OpenedBy)

	prev := repo.periods[1]
	require.Equal(t, PeriodStatusClosed, prev.Status)
	require.NotNil(t, prev.ClosedAt)
	require.True(t, prev.ClosedAt.Equal(now))

	list, err := svc.List(context.Background(), "C1")
	require.NoError(t, err)
	openCount := 0
	for _, p := range list {
		if p.Status == PeriodStatusOpen {
			openCount++
		}
	}
	require.Equal(t, 1, openCount)

	require.Len(t, audit.logs, 1)
	require.Equal(t, "period.open", audit.logs[0].Action)
	require.Equal(t, "2", audit.logs[0].EntityID)
}

func TestOpenPeriodErrors(t *testing.T) {
	repo := newFakeRepo(period(1, "2024-01-01", "2024-01-31", PeriodStatusOpen))
	svc := NewService(fakeRunner{repo: repo}, nil, nil)

	_, err := svc.OpenPeriod(context.Background(), "C1", 1, "u")
	require.ErrorIs(t, err, shared.ErrAlreadyOpen)

	_, err = svc.OpenPeriod(context.Background(), "C1", 99, "u")
	require.ErrorIs(t, err, shared.ErrPeriodNotFound)
}

func TestClosePeriodRequiresOpen(t *testing.T) {
	repo := newFakeRepo(
		period(1, "2024-01-01", "2024-01-31", PeriodStatusOpen),
		period(2, "2024-02-01", "2024-02-29", PeriodStatusFuture),
	)
	svc := NewService(fakeRunner{repo: repo}, nil, nil)

	_, err := svc.ClosePeriod(context.Background(), "C1", 2, "u")
	require.ErrorIs(t, err, shared.ErrNotOpen)

	closed, err := svc.ClosePeriod(context.Background(), "C1", 1, "u")
	require.NoError(t, err)
	require.Equal(t, PeriodStatusClosed, closed.Status)

	_, err = svc.ClosePeriod(context.Background(), "C1", 1, "u")
	require.ErrorIs(t, err, shared.ErrNotOpen)

	require.ErrorIs(t, svc.ValidateDate(context.Background(), "C1", day("2024-01-10")), shared.ErrPeriodClosed)
}

func TestReopenClosedPeriod(t *testing.T) {
	repo := newFakeRepo(period(1, "2024-01-01", "2024-01-31", PeriodStatusClosed))
	svc := NewService(fakeRunner{repo: repo}, nil, nil)

	reopened, err := svc.OpenPeriod(context.Background(), "C1", 1, "u")
	require.NoError(t, err)
	require.Equal(t, PeriodStatusOpen, reopened.Status)
	require.Nil(t, reopened.ClosedAt)
	require.NoError(t, svc.ValidateDate(context.Background(), "C1", day("2024-01-31")))
}
