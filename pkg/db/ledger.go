package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ledgerLogPrefix = "db:ledger"

// UsageRecord mirrors one row of the append-only usage_records table.
type UsageRecord struct {
	Caller       string
	CapabilityID string
	CostMicros   int64
	Success      bool
	LatencyMs    int
	CreatedAt    time.Time
}

// LedgerRepository provides durable append and aggregation access to the
// usage ledger. All appends are committed before the caller's response is
// returned, per spec.md §5, so a crash cannot double-count a settled payment.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a LedgerRepository backed by pool.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// Append writes one usage record. Called for both successful and failed
// dispatches so the ledger stays reconcilable.
func (l *LedgerRepository) Append(ctx context.Context, r UsageRecord) error {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO usage_records (caller, capability_id, cost_micros, success, latency_ms)
		 VALUES ($1, $2, $3, $4, $5)`,
		r.Caller, r.CapabilityID, r.CostMicros, r.Success, r.LatencyMs)
	if err != nil {
		return fmt.Errorf("%s - append: %w", ledgerLogPrefix, err)
	}
	return nil
}

// DateRange bounds an aggregation query by inclusive day.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// Totals holds the result of the "totals" aggregation query.
type Totals struct {
	TotalCalls      int64
	TotalSpend      int64
	SuccessFraction float64
	AvgLatencyMs    float64
	FirstCall       *time.Time
	LastCall        *time.Time
}

// Totals aggregates all usage for caller within the optional date range.
func (l *LedgerRepository) Totals(ctx context.Context, caller string, r DateRange) (*Totals, error) {
	query := `SELECT
			COUNT(*),
			COALESCE(SUM(cost_micros), 0),
			COALESCE(AVG(CASE WHEN success THEN 1.0 ELSE 0.0 END), 0),
			COALESCE(AVG(latency_ms), 0),
			MIN(created_at),
			MAX(created_at)
		FROM usage_records WHERE caller = $1`
	args := []interface{}{caller}
	query, args = appendDateRange(query, args, r)

	var t Totals
	row := l.pool.QueryRow(ctx, query, args...)
	if err := row.Scan(&t.TotalCalls, &t.TotalSpend, &t.SuccessFraction, &t.AvgLatencyMs, &t.FirstCall, &t.LastCall); err != nil {
		return nil, fmt.Errorf("%s - totals: %w", ledgerLogPrefix, err)
	}
	return &t, nil
}

// CapabilityTotal holds one row of the "by capability" aggregation query.
type CapabilityTotal struct {
	CapabilityID string
	Calls        int64
	Spend        int64
	SuccessRate  float64
	AvgLatencyMs float64
}

// ByCapability aggregates usage per capability for caller, descending by spend.
func (l *LedgerRepository) ByCapability(ctx context.Context, caller string, r DateRange) ([]CapabilityTotal, error) {
	query := `SELECT
			capability_id,
			COUNT(*),
			COALESCE(SUM(cost_micros), 0),
			COALESCE(AVG(CASE WHEN success THEN 1.0 ELSE 0.0 END), 0),
			COALESCE(AVG(latency_ms), 0)
		FROM usage_records WHERE caller = $1`
	args := []interface{}{caller}
	query, args = appendDateRange(query, args, r)
	query += ` GROUP BY capability_id ORDER BY SUM(cost_micros) DESC`

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s - byCapability: %w", ledgerLogPrefix, err)
	}
	defer rows.Close()

	var out []CapabilityTotal
	for rows.Next() {
		var c CapabilityTotal
		if err := rows.Scan(&c.CapabilityID, &c.Calls, &c.Spend, &c.SuccessRate, &c.AvgLatencyMs); err != nil {
			return nil, fmt.Errorf("%s - byCapability scan: %w", ledgerLogPrefix, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DayTotal holds one row of the "timeline" aggregation query.
type DayTotal struct {
	Day   time.Time
	Spend int64
	Calls int64
}

// Timeline aggregates usage per day for caller, ascending by date.
func (l *LedgerRepository) Timeline(ctx context.Context, caller string, r DateRange) ([]DayTotal, error) {
	query := `SELECT date_trunc('day', created_at) AS day, COALESCE(SUM(cost_micros), 0), COUNT(*)
		FROM usage_records WHERE caller = $1`
	args := []interface{}{caller}
	query, args = appendDateRange(query, args, r)
	query += ` GROUP BY day ORDER BY day ASC`

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s - timeline: %w", ledgerLogPrefix, err)
	}
	defer rows.Close()

	var out []DayTotal
	for rows.Next() {
		var d DayTotal
		if err := rows.Scan(&d.Day, &d.Spend, &d.Calls); err != nil {
			return nil, fmt.Errorf("%s - timeline scan: %w", ledgerLogPrefix, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func appendDateRange(query string, args []interface{}, r DateRange) (string, []interface{}) {
	if r.From != nil {
		args = append(args, *r.From)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if r.To != nil {
		args = append(args, *r.To)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	return query, args
}
