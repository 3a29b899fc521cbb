// Package orders holds the order-assembly collaborators shared by the
// checkout flow.
package orders

import (
	"context"
	"database/sql"
	"fmt"
)

// TotalsCalculator recomputes an order's totals after its detail rows are in
// place. The checkout handler calls it once per seller-order, inside the
// checkout transaction, and reconciles the payment amount against the value
// it returns.
type TotalsCalculator interface {
	Apply(ctx context.Context, tx *sql.Tx, orderID int, shippingFee float64) (float64, error)
}

// SQLTotalsCalculator sums the order's detail rows in the database and writes
// the totals back onto the order header.
type SQLTotalsCalculator struct{}

func NewSQLTotalsCalculator() *SQLTotalsCalculator {
	return &SQLTotalsCalculator{}
}

func (c *SQLTotalsCalculator) Apply(ctx context.Context, tx *sql.Tx, orderID int, shippingFee float64) (float64, error) {
	var finalTotal float64
	err := tx.QueryRowContext(ctx,
		`UPDATE orders SET total_amount = sub.total, final_total = sub.total + $2
		 FROM (SELECT COALESCE(SUM(quantity * unit_price), 0) AS total FROM order_details WHERE order_id = $1) AS sub
		 WHERE id = $1
		 RETURNING final_total`,
		orderID, shippingFee,
	).Scan(&finalTotal)
	if err != nil {
		return 0, fmt.Errorf("failed to apply order totals: %w", err)
	}
	return finalTotal, nil
}
