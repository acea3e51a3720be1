package storage

import (
	"context"

	"github.com/sw33tLie/candyvend/pkg/candy"
	"github.com/sw33tLie/candyvend/pkg/history"
)

// HistoryRow is a persisted ledger entry.
type HistoryRow struct {
	history.Entry
	Floor int
}

// TypeStats aggregates persisted history per candy type.
type TypeStats struct {
	Type       string
	Count      int
	TotalScore int
}

// HistorySink mirrors a floor's ledger into the history_entries table.
type HistorySink struct {
	DB    *DB
	Floor int
}

func (s HistorySink) AppendHistory(ctx context.Context, e history.Entry) error {
	return s.DB.AppendHistory(ctx, s.Floor, e)
}

// AppendHistory inserts e. Re-inserting the same id is a no-op, matching
// the ledger's append-only contract.
func (d *DB) AppendHistory(ctx context.Context, floor int, e history.Entry) error {
	_, err := d.sql.ExecContext(ctx,
		"INSERT OR IGNORE INTO history_entries(id, floor_number, candy_type, score, consumed_at) VALUES(?,?,?,?,?)",
		e.ID, floor, e.Type.String(), e.Score, formatTime(e.Timestamp))
	return err
}

// ListHistory returns the most recent entries first.
func (d *DB) ListHistory(ctx context.Context, limit int) ([]HistoryRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.sql.QueryContext(ctx, "SELECT id, floor_number, candy_type, score, consumed_at FROM history_entries ORDER BY consumed_at DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryRow
	for rows.Next() {
		var r HistoryRow
		var typ, consumedAt string
		if err := rows.Scan(&r.ID, &r.Floor, &typ, &r.Score, &consumedAt); err != nil {
			return nil, err
		}
		t, err := candy.ParseType(typ)
		if err != nil {
			return nil, err
		}
		r.Type = t
		r.Timestamp = parseTime(consumedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *DB) HistoryStats(ctx context.Context) ([]TypeStats, error) {
	rows, err := d.sql.QueryContext(ctx, `
		SELECT candy_type, COUNT(*), COALESCE(SUM(score), 0)
		FROM history_entries
		GROUP BY candy_type
		ORDER BY candy_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []TypeStats
	for rows.Next() {
		var s TypeStats
		if err := rows.Scan(&s.Type, &s.Count, &s.TotalScore); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
