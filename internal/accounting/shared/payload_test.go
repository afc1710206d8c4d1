package shared

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPayloadDecimalAcceptsNumbersOnly(t *testing.T) {
	p := Payload{
		"amount":  400,
		"float":   12.5,
		"json":    json.Number("99.95"),
		"text":    "400",
		"nested":  map[string]any{"net": int64(70)},
		"missing": nil,
	}

	v, ok := p.Decimal("amount")
	require.True(t, ok)
	require.Equal(t, "400", v.String())

	v, ok = p.Decimal("float")
	require.True(t, ok)
	require.Equal(t, "12.5", v.String())

	v, ok = p.Decimal("json")
	require.True(t, ok)
	require.Equal(t, "99.95", v.String())

	v, ok = p.Decimal("nested.net")
	require.True(t, ok)
	require.Equal(t, "70", v.String())

	_, ok = p.Decimal("text")
	require.False(t, ok)
	_, ok = p.Decimal("missing")
	require.False(t, ok)
	_, ok = p.Decimal("nested.gross")
	require.False(t, ok)
}

func TestPayloadDate(t *testing.T) {
	p := Payload{
		"date":      "2024-01-15",
		"posted_at": "2024-01-20T23:10:00Z",
		"bad":       "15/01/2024",
		"number":    20240115,
	}

	d, ok, err := p.Date("date")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), d)

	d, ok, err = p.Date("posted_at")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC), d)

	_, ok, err = p.Date("absent")
	require.NoError(t, err)
	require.False(t, ok)

	_, _, err = p.Date("bad")
	require.ErrorIs(t, err, ErrInvalidPayload)

	_, _, err = p.Date("number")
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestPayloadFirstDate(t *testing.T) {
	p := Payload{"invoice_date": "2024-01-05", "date": "2024-01-12", "bad": "soon"}

	d, ok, err := p.FirstDate(EventDateKey, "invoice_date")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC), d)

	d, ok, err = p.FirstDate("absent", "invoice_date")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), d)

	_, ok, err = p.FirstDate("absent")
	require.NoError(t, err)
	require.False(t, ok)

	_, _, err = p.FirstDate("bad", EventDateKey)
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestWithinIsInclusive(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	require.True(t, Within(start, start, end))
	require.True(t, Within(end.Add(23*time.Hour), start, end))
	require.False(t, Within(end.AddDate(0, 0, 1), start, end))
	require.False(t, Within(start.Add(-time.Second), start, end))
}

func TestKind(t *testing.T) {
	require.Equal(t, "", Kind(nil))
	require.Equal(t, "PeriodClosed", Kind(ErrPeriodClosed))
	require.Equal(t, "AccountNotFound", Kind(errors.Join(errors.New("ctx"), ErrAccountNotFound)))
	require.Equal(t, "BudgetExceeded", Kind(&BudgetExceededError{AccountID: "5000"}))
	require.Equal(t, KindInternal, Kind(errors.New("boom")))
}

func TestNormalizeKey(t *testing.T) {
	require.Equal(t, "EXPENSE_CREATE", NormalizeKey(" expense-create "))
	require.Equal(t, "AP_INVOICE", NormalizeKey("ap.invoice"))
	require.Equal(t, "", NormalizeKey("   "))
}
