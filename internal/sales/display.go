package sales

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Column describes one column from PRAGMA table_info.
type Column struct {
	Name       string
	Type       string
	PrimaryKey bool
}

// Display renders every table's schema and rows, then the customer order
// summary and the product sales summary, as plain-bordered text tables.
func (s *Store) Display(ctx context.Context) (string, error) {
	tables, err := s.tableNames(ctx)
	if err != nil {
		return "", fmt.Errorf("list tables: %w", err)
	}

	var b strings.Builder
	b.WriteString("SCHEMA\n")
	for _, name := range tables {
		cols, err := s.columns(ctx, name)
		if err != nil {
			return "", fmt.Errorf("schema %s: %w", name, err)
		}
		parts := make([]string, len(cols))
		for i, c := range cols {
			parts[i] = c.Name + " " + c.Type
			if c.PrimaryKey {
				parts[i] += " (PK)"
			}
		}
		fmt.Fprintf(&b, "  %s: %s\n", name, strings.Join(parts, ", "))
	}

	for _, name := range tables {
		out, err := s.renderQuery(ctx, "SELECT * FROM "+quoteIdent(name))
		if err != nil {
			return "", fmt.Errorf("table %s: %w", name, err)
		}
		fmt.Fprintf(&b, "\nTABLE %s\n%s\n", name, out)
	}

	summaries := []struct {
		title, query string
	}{
		{"CUSTOMER ORDERS SUMMARY", `
			SELECT c.customer_id, c.first_name, c.last_name, c.email,
			       COUNT(o.order_id) AS order_count, SUM(o.total_amount) AS total_spent
			FROM customers c
			LEFT JOIN orders o ON c.customer_id = o.customer_id
			GROUP BY c.customer_id`},
		{"PRODUCT SALES SUMMARY", `
			SELECT p.product_id, p.name, p.category, p.price,
			       SUM(oi.quantity) AS units_sold, SUM(oi.quantity * oi.price_per_unit) AS revenue
			FROM products p
			LEFT JOIN order_items oi ON p.product_id = oi.product_id
			GROUP BY p.product_id
			ORDER BY revenue DESC`},
	}
	for _, sum := range summaries {
		out, err := s.renderQuery(ctx, sum.query)
		if err != nil {
			return "", fmt.Errorf("%s: %w", strings.ToLower(sum.title), err)
		}
		fmt.Fprintf(&b, "\n%s\n%s\n", sum.title, out)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (s *Store) tableNames(ctx context.Context) ([]string, error) {
	var names []string
	err := s.each(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY rowid",
		func(rows *sql.Rows) error {
			var n string
			if err := rows.Scan(&n); err != nil {
				return err
			}
			names = append(names, n)
			return nil
		})
	return names, err
}

// columns returns the schema of tableName.
func (s *Store) columns(ctx context.Context, tableName string) ([]Column, error) {
	var cols []Column
	err := s.each(ctx, "PRAGMA table_info("+quoteIdent(tableName)+")", func(rows *sql.Rows) error {
		var (
			cid, notNull, pk int64
			name, typ        string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return err
		}
		cols = append(cols, Column{Name: name, Type: typ, PrimaryKey: pk > 0})
		return nil
	})
	return cols, err
}

// renderQuery runs an arbitrary query and renders the result set.
func (s *Store) renderQuery(ctx context.Context, query string) (string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	headers, err := rows.Columns()
	if err != nil {
		return "", err
	}
	var data [][]string
	for rows.Next() {
		vals := make([]any, len(headers))
		ptrs := make([]any, len(headers))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", err
		}
		row := make([]string, len(vals))
		for i, v := range vals {
			row[i] = formatCell(v)
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(data...)
	return t.String(), nil
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	case float64:
		return strconv.FormatFloat(x, 'f', 2, 64)
	default:
		return fmt.Sprint(x)
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
