package sales

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Report renders the five-section sales analysis: overall summary,
// products, customers, inventory and payment methods.
func (s *Store) Report(ctx context.Context, now time.Time) (string, error) {
	r := &reportWriter{}
	r.line("%s", strings.Repeat("=", 80))
	r.line("ONLINE SALES DATABASE ANALYSIS REPORT")
	r.line("Generated on: %s", now.Format(time.DateTime))
	r.line("%s", strings.Repeat("=", 80))

	sections := []struct {
		title string
		fn    func(context.Context, *reportWriter) error
	}{
		{"1. OVERALL SALES SUMMARY", s.overallSection},
		{"2. PRODUCT ANALYSIS", s.productSection},
		{"3. CUSTOMER ANALYSIS", s.customerSection},
		{"4. INVENTORY STATUS", s.inventorySection},
		{"5. PAYMENT METHOD ANALYSIS", s.paymentSection},
	}
	for i, sec := range sections {
		if i == 0 {
			r.line("\n%s", sec.title)
		} else {
			r.line("\n\n%s", sec.title)
		}
		r.line("%s", strings.Repeat("-", 30))
		if err := sec.fn(ctx, r); err != nil {
			return "", fmt.Errorf("%s: %w", strings.ToLower(sec.title[3:]), err)
		}
	}
	return r.String(), nil
}

type reportWriter struct {
	lines []string
}

func (r *reportWriter) line(format string, args ...any) {
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

func (r *reportWriter) String() string { return strings.Join(r.lines, "\n") }

func (s *Store) totals(ctx context.Context) (orders int64, revenue float64, err error) {
	var rev sql.NullFloat64
	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), SUM(total_amount) FROM orders",
	).Scan(&orders, &rev)
	return orders, rev.Float64, err
}

func (s *Store) overallSection(ctx context.Context, r *reportWriter) error {
	orders, revenue, err := s.totals(ctx)
	if err != nil {
		return err
	}
	avg := 0.0
	if orders > 0 {
		avg = revenue / float64(orders)
	}
	r.line("Total Orders: %d", orders)
	r.line("Total Revenue: $%.2f", revenue)
	r.line("Average Order Value: $%.2f", avg)

	r.line("\nOrder Status Breakdown:")
	return s.each(ctx, `
		SELECT status, COUNT(*), SUM(total_amount), ROUND(AVG(total_amount), 2)
		FROM orders GROUP BY status ORDER BY COUNT(*) DESC`,
		func(rows *sql.Rows) error {
			var (
				status     string
				count      int64
				total, avg float64
			)
			if err := rows.Scan(&status, &count, &total, &avg); err != nil {
				return err
			}
			r.line("  %s: %d orders, $%.2f total, $%.2f avg", status, count, total, avg)
			return nil
		})
}

func (s *Store) productSection(ctx context.Context, r *reportWriter) error {
	r.line("Product Categories:")
	err := s.each(ctx, `
		SELECT category, COUNT(*) FROM products
		GROUP BY category ORDER BY COUNT(*) DESC`,
		func(rows *sql.Rows) error {
			var (
				category string
				n        int64
			)
			if err := rows.Scan(&category, &n); err != nil {
				return err
			}
			r.line("  %s: %d products", category, n)
			return nil
		})
	if err != nil {
		return err
	}

	r.line("\nTop 5 Products by Revenue:")
	rank := 0
	err = s.each(ctx, `
		SELECT p.name, p.category, p.price,
		       SUM(oi.quantity), SUM(oi.quantity * oi.price_per_unit) AS revenue
		FROM products p
		JOIN order_items oi ON p.product_id = oi.product_id
		GROUP BY p.product_id
		ORDER BY revenue DESC
		LIMIT 5`,
		func(rows *sql.Rows) error {
			var (
				name, category string
				price, revenue float64
				units          int64
			)
			if err := rows.Scan(&name, &category, &price, &units, &revenue); err != nil {
				return err
			}
			rank++
			r.line("  %d. %s (%s)", rank, name, category)
			r.line("     Price: $%.2f | Units Sold: %d | Revenue: $%.2f", price, units, revenue)
			return nil
		})
	if err != nil {
		return err
	}

	r.line("\nSales by Category:")
	return s.each(ctx, `
		SELECT p.category, SUM(oi.quantity), SUM(oi.quantity * oi.price_per_unit) AS revenue
		FROM order_items oi
		JOIN products p ON oi.product_id = p.product_id
		GROUP BY p.category
		ORDER BY revenue DESC`,
		func(rows *sql.Rows) error {
			var (
				category string
				units    int64
				revenue  float64
			)
			if err := rows.Scan(&category, &units, &revenue); err != nil {
				return err
			}
			r.line("  %s: %d units, $%.2f revenue", category, units, revenue)
			return nil
		})
}

func (s *Store) customerSection(ctx context.Context, r *reportWriter) error {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM customers").Scan(&n); err != nil {
		return err
	}
	r.line("Total Customers: %d", n)

	r.line("\nTop 5 Customers by Spending:")
	rank := 0
	err := s.each(ctx, `
		SELECT c.first_name || ' ' || c.last_name,
		       COUNT(o.order_id), SUM(o.total_amount) AS total_spent, AVG(o.total_amount)
		FROM customers c
		JOIN orders o ON c.customer_id = o.customer_id
		GROUP BY c.customer_id
		ORDER BY total_spent DESC
		LIMIT 5`,
		func(rows *sql.Rows) error {
			var (
				name       string
				orders     int64
				spent, avg float64
			)
			if err := rows.Scan(&name, &orders, &spent, &avg); err != nil {
				return err
			}
			rank++
			r.line("  %d. %s", rank, name)
			r.line("     Orders: %d | Total Spent: $%.2f | Avg Order: $%.2f", orders, spent, avg)
			return nil
		})
	if err != nil {
		return err
	}

	r.line("\nCustomer Distribution by State:")
	return s.each(ctx, `
		SELECT state, COUNT(*) FROM customers
		GROUP BY state ORDER BY COUNT(*) DESC`,
		func(rows *sql.Rows) error {
			var (
				state sql.NullString
				n     int64
			)
			if err := rows.Scan(&state, &n); err != nil {
				return err
			}
			r.line("  %s: %d customers", state.String, n)
			return nil
		})
}

func (s *Store) inventorySection(ctx context.Context, r *reportWriter) error {
	var total, avg, lo, hi sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, `
		SELECT SUM(stock_quantity), AVG(stock_quantity), MIN(stock_quantity), MAX(stock_quantity)
		FROM products`,
	).Scan(&total, &avg, &lo, &hi); err != nil {
		return err
	}
	r.line("Total Inventory: %.0f units", total.Float64)
	r.line("Average Stock per Product: %.1f units", avg.Float64)
	r.line("Stock Range: %.0f to %.0f units", lo.Float64, hi.Float64)

	var low []string
	err := s.each(ctx, `
		SELECT name, category, stock_quantity, price
		FROM products
		WHERE stock_quantity < 50
		ORDER BY stock_quantity ASC`,
		func(rows *sql.Rows) error {
			var (
				name, category string
				stock          int64
				price          float64
			)
			if err := rows.Scan(&name, &category, &stock, &price); err != nil {
				return err
			}
			low = append(low, fmt.Sprintf("  %s (%s): %d units left | $%.2f", name, category, stock, price))
			return nil
		})
	if err != nil {
		return err
	}
	if len(low) > 0 {
		r.line("\nLow Stock Products (less than 50 units):")
		r.lines = append(r.lines, low...)
	}
	return nil
}

func (s *Store) paymentSection(ctx context.Context, r *reportWriter) error {
	orders, _, err := s.totals(ctx)
	if err != nil {
		return err
	}
	r.line("Payment Method Breakdown:")
	return s.each(ctx, `
		SELECT payment_method, COUNT(*), SUM(total_amount) AS total_revenue, AVG(total_amount)
		FROM orders
		GROUP BY payment_method
		ORDER BY total_revenue DESC`,
		func(rows *sql.Rows) error {
			var (
				method       sql.NullString
				count        int64
				revenue, avg float64
			)
			if err := rows.Scan(&method, &count, &revenue, &avg); err != nil {
				return err
			}
			pct := 0.0
			if orders > 0 {
				pct = float64(count) / float64(orders) * 100
			}
			r.line("  %s: %d orders (%.1f%%)", method.String, count, pct)
			r.line("     Total Revenue: $%.2f | Avg Order: $%.2f", revenue, avg)
			return nil
		})
}

// each runs query and calls fn for every row.
func (s *Store) each(ctx context.Context, query string, fn func(*sql.Rows) error) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}
