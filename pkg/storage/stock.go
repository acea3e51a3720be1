package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sw33tLie/candyvend/pkg/candy"
	"github.com/sw33tLie/candyvend/pkg/stock"
)

// StockRow is one row of a stock table.
type StockRow struct {
	Floor  int
	Vendor string
	Counts candy.Counts
}

// Seed fills missing stock rows: every floor of the machine and floor tiers
// starts at the default capacity, the vendor warehouse at vendorMultiple
// times that. Existing rows are left alone.
func (d *DB) Seed(ctx context.Context, vendorName string, vendorMultiple int) error {
	if vendorMultiple <= 0 {
		vendorMultiple = 1
	}
	defaults := candy.Defaults()
	var vendorCounts candy.Counts
	for _, t := range candy.All() {
		vendorCounts = vendorCounts.With(t, defaults.Get(t)*vendorMultiple)
	}

	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	fields, placeholders := fieldList()
	for _, table := range []string{stock.Machine.Table(), stock.Floor.Table()} {
		q := fmt.Sprintf("INSERT OR IGNORE INTO %s(floor_number, %s) VALUES(?, %s)", table, fields, placeholders)
		for floor := stock.MinFloor; floor <= stock.MaxFloor; floor++ {
			if _, err = tx.ExecContext(ctx, q, append([]interface{}{floor}, countArgs(defaults)...)...); err != nil {
				return err
			}
		}
	}

	q := fmt.Sprintf("INSERT OR IGNORE INTO vendor_stock(id, vendor_name, %s) VALUES(1, ?, %s)", fields, placeholders)
	if _, err = tx.ExecContext(ctx, q, append([]interface{}{vendorName}, countArgs(vendorCounts)...)...); err != nil {
		return err
	}

	err = tx.Commit()
	return err
}

// GetStock returns every row of the tier's table, ordered by floor.
func (d *DB) GetStock(ctx context.Context, tier stock.Tier) ([]StockRow, error) {
	fields, _ := fieldList()
	var q string
	switch tier {
	case stock.Machine, stock.Floor:
		q = fmt.Sprintf("SELECT floor_number, '', %s FROM %s ORDER BY floor_number", fields, tier.Table())
	case stock.Vendor:
		q = fmt.Sprintf("SELECT 0, vendor_name, %s FROM vendor_stock ORDER BY id", fields)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownTable, int(tier))
	}

	rows, err := d.sql.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StockRow
	for rows.Next() {
		var r StockRow
		var c [5]int
		if err := rows.Scan(&r.Floor, &r.Vendor, &c[0], &c[1], &c[2], &c[3], &c[4]); err != nil {
			return nil, err
		}
		for i, t := range candy.All() {
			r.Counts = r.Counts.With(t, c[i])
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetStockField updates one count. floor is ignored for the vendor tier.
func (d *DB) SetStockField(ctx context.Context, tier stock.Tier, floor int, field string, n int) error {
	if _, ok := candy.TypeForField(field); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	if n < 0 {
		return fmt.Errorf("negative count %d for %s", n, field)
	}

	var (
		res sql.Result
		err error
	)
	switch tier {
	case stock.Machine, stock.Floor:
		res, err = d.sql.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET %s = ? WHERE floor_number = ?", tier.Table(), field), n, floor)
	case stock.Vendor:
		res, err = d.sql.ExecContext(ctx, fmt.Sprintf("UPDATE vendor_stock SET %s = ? WHERE id = 1", field), n)
	default:
		return fmt.Errorf("%w: %d", ErrUnknownTable, int(tier))
	}
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w %d in %s", ErrNoSuchFloor, floor, tier.Table())
	}
	return nil
}

func fieldList() (fields, placeholders string) {
	var names, marks []string
	for _, t := range candy.All() {
		names = append(names, candy.APIFieldName(t))
		marks = append(marks, "?")
	}
	return strings.Join(names, ", "), strings.Join(marks, ", ")
}

func countArgs(c candy.Counts) []interface{} {
	out := make([]interface{}, 0, len(c))
	for _, t := range candy.All() {
		out = append(out, c.Get(t))
	}
	return out
}
