package sales

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

type customerRow struct {
	first, last, email, address, city, state, zip, registered, lastLogin string
}

type productRow struct {
	name, description, category string
	price                       float64
	stock                       int
	created                     string
}

var sampleCustomers = []customerRow{
	{"John", "Smith", "john.smith@email.com", "123 Main St", "New York", "NY", "10001", "2023-01-15", "2024-03-10"},
	{"Jane", "Doe", "jane.doe@email.com", "456 Oak Ave", "Los Angeles", "CA", "90001", "2023-02-20", "2024-03-12"},
	{"Michael", "Johnson", "michael.j@email.com", "789 Pine Blvd", "Chicago", "IL", "60007", "2023-03-05", "2024-03-09"},
	{"Emily", "Williams", "emily.w@email.com", "321 Cedar Dr", "Houston", "TX", "77001", "2023-04-10", "2024-03-11"},
	{"David", "Brown", "david.b@email.com", "654 Maple Ln", "Phoenix", "AZ", "85001", "2023-05-22", "2024-03-08"},
}

var sampleProducts = []productRow{
	{"Laptop Pro", "High-end laptop with 16GB RAM and 512GB SSD", "Electronics", 1299.99, 50, "2023-01-10"},
	{"Smartphone X", "Latest smartphone with dual camera", "Electronics", 799.99, 100, "2023-02-05"},
	{"Cotton T-Shirt", "Comfortable cotton t-shirt, various colors", "Clothing", 19.99, 200, "2023-01-20"},
	{"Chef Knife Set", "Professional 5-piece knife set", "Kitchen", 89.99, 30, "2023-03-15"},
	{"Wireless Headphones", "Noise-cancelling wireless headphones", "Electronics", 159.99, 75, "2023-02-25"},
	{"Yoga Mat", "Non-slip exercise yoga mat", "Sports", 29.99, 120, "2023-04-05"},
	{"Coffee Maker", "Programmable coffee maker with timer", "Kitchen", 49.99, 60, "2023-03-20"},
	{"Running Shoes", "Lightweight running shoes for all terrains", "Footwear", 79.99, 90, "2023-05-01"},
}

var (
	orderStatuses  = []string{"Pending", "Shipped", "Delivered", "Cancelled"}
	paymentMethods = []string{"Credit Card", "PayPal", "Apple Pay", "Google Pay"}
)

// Seed populates an empty database with the sample customers and products
// and 1-3 random orders per customer, each with 1-5 distinct products.
// All inserts run in one transaction.
func (s *Store) Seed(ctx context.Context, rng *rand.Rand) error {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM customers").Scan(&n); err != nil {
		return fmt.Errorf("count customers: %w", err)
	}
	if n > 0 {
		return ErrAlreadySeeded
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, c := range sampleCustomers {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO customers (first_name, last_name, email, address, city, state, zipcode,
			                       registration_date, last_login)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.first, c.last, c.email, c.address, c.city, c.state, c.zip, c.registered, c.lastLogin,
		); err != nil {
			return fmt.Errorf("insert customer %s: %w", c.email, err)
		}
	}
	for _, p := range sampleProducts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO products (name, description, category, price, stock_quantity, created_date)
			VALUES (?, ?, ?, ?, ?, ?)`,
			p.name, p.description, p.category, p.price, p.stock, p.created,
		); err != nil {
			return fmt.Errorf("insert product %s: %w", p.name, err)
		}
	}

	for customerID := 1; customerID <= len(sampleCustomers); customerID++ {
		c := sampleCustomers[customerID-1]
		shipping := fmt.Sprintf("%s, %s, %s %s", c.address, c.city, c.state, c.zip)

		for range 1 + rng.IntN(3) {
			date := time.Date(2024, time.Month(1+rng.IntN(3)), 1+rng.IntN(28), 0, 0, 0, 0, time.UTC)
			status := orderStatuses[rng.IntN(len(orderStatuses))]
			payment := paymentMethods[rng.IntN(len(paymentMethods))]

			res, err := tx.ExecContext(ctx, `
				INSERT INTO orders (customer_id, order_date, total_amount, status, shipping_address, payment_method)
				VALUES (?, ?, 0, ?, ?, ?)`,
				customerID, date.Format(time.DateOnly), status, shipping, payment,
			)
			if err != nil {
				return fmt.Errorf("insert order: %w", err)
			}
			orderID, err := res.LastInsertId()
			if err != nil {
				return err
			}

			total := 0.0
			perm := rng.Perm(len(sampleProducts))
			for _, idx := range perm[:1+rng.IntN(5)] {
				price := sampleProducts[idx].price
				qty := 1 + rng.IntN(3)
				total += price * float64(qty)
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO order_items (order_id, product_id, quantity, price_per_unit)
					VALUES (?, ?, ?, ?)`,
					orderID, idx+1, qty, price,
				); err != nil {
					return fmt.Errorf("insert order item: %w", err)
				}
			}
			if _, err := tx.ExecContext(ctx,
				"UPDATE orders SET total_amount = ? WHERE order_id = ?", total, orderID,
			); err != nil {
				return fmt.Errorf("update order total: %w", err)
			}
		}
	}
	return tx.Commit()
}
