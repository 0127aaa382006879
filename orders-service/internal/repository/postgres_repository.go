package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/fjod/storefront/internal/orders"
)

const uniqueViolation = "23505"

type Repository struct {
	db *sql.DB
}

func NewRepository(cred *Credentials) (*Repository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "orders_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

func (r *Repository) CreateOrder(ctx context.Context, o *orders.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}
	event, err := newEvent(o, orders.EventOrderCreated)
	if err != nil {
		return fmt.Errorf("build outbox event: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// rows are locked in variant order, see orders.StockDemand
	for _, d := range orders.StockDemand(o.Items) {
		res, err := tx.ExecContext(ctx,
			`UPDATE variant_stock SET stock = stock - $1, updated_at = NOW()
			 WHERE variant_id = $2 AND stock >= $1`,
			d.Quantity, d.VariantID)
		if err != nil {
			return fmt.Errorf("decrement stock for %s: %w", d.VariantID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("decrement stock for %s: %w", d.VariantID, err)
		}
		if n == 0 {
			return r.stockFailure(ctx, tx, d)
		}
	}

	query := `INSERT INTO orders (id, order_number, user_id, items, subtotal, discount, shipping, tax, total,
	              shipping_address, contact_name, phone, payment_reference, status, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, insertErr := tx.ExecContext(ctx, query,
		o.ID,
		o.OrderNumber,
		o.UserID,
		itemsJSON,
		o.Subtotal,
		o.Discount,
		o.Shipping,
		o.Tax,
		o.Total,
		o.ShippingAddress,
		o.ContactName,
		o.Phone,
		o.PaymentReference,
		o.Status,
		o.CreatedAt,
		o.UpdatedAt)

	if insertErr != nil {
		var pqErr *pq.Error
		if errors.As(insertErr, &pqErr) && pqErr.Code == uniqueViolation && pqErr.Constraint == "orders_payment_reference_key" {
			return orders.ErrDuplicatePayment
		}
		return fmt.Errorf("insert order: %w", insertErr)
	}

	if err := insertOutbox(ctx, tx, event); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repository) stockFailure(ctx context.Context, tx *sql.Tx, d orders.VariantQuantity) error {
	var exists bool
	err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM variant_stock WHERE variant_id = $1)`, d.VariantID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check variant %s: %w", d.VariantID, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", orders.ErrVariantNotFound, d.VariantID)
	}
	return &orders.StockError{VariantID: d.VariantID, Requested: d.Quantity}
}

const selectOrder = `SELECT id, order_number, user_id, items, subtotal, discount, shipping, tax, total,
	shipping_address, contact_name, phone, payment_reference, status, created_at, updated_at, cancelled_at
	FROM orders`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*orders.Order, error) {
	var o orders.Order
	var itemsJSON []byte
	var cancelledAt sql.NullTime
	err := row.Scan(
		&o.ID,
		&o.OrderNumber,
		&o.UserID,
		&itemsJSON,
		&o.Subtotal,
		&o.Discount,
		&o.Shipping,
		&o.Tax,
		&o.Total,
		&o.ShippingAddress,
		&o.ContactName,
		&o.Phone,
		&o.PaymentReference,
		&o.Status,
		&o.CreatedAt,
		&o.UpdatedAt,
		&cancelledAt,
	)
	if err != nil {
		return nil, err
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time
		o.CancelledAt = &t
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	return &o, nil
}

func (r *Repository) getOne(ctx context.Context, where string, arg any) (*orders.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, selectOrder+" WHERE "+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, orders.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	return o, nil
}

func (r *Repository) GetOrderByID(ctx context.Context, id uuid.UUID) (*orders.Order, error) {
	return r.getOne(ctx, "id = $1", id)
}

func (r *Repository) GetOrderByNumber(ctx context.Context, number string) (*orders.Order, error) {
	return r.getOne(ctx, "order_number = $1", number)
}

func (r *Repository) GetOrderByPaymentReference(ctx context.Context, ref string) (*orders.Order, error) {
	return r.getOne(ctx, "payment_reference = $1", ref)
}

func (r *Repository) ListOrdersByUserID(ctx context.Context, userID string) ([]*orders.Order, error) {
	rows, err := r.db.QueryContext(ctx, selectOrder+" WHERE user_id = $1 ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("query orders by user id: %w", err)
	}
	defer rows.Close()

	var out []*orders.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		out = append(out, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return out, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, o *orders.Order, from orders.Status) error {
	event, err := newEvent(o, orders.EventOrderStatusChanged)
	if err != nil {
		return fmt.Errorf("build outbox event: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		o.Status, o.UpdatedAt, o.ID, from)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if err := guardTransition(res, from, o.Status); err != nil {
		return err
	}

	if err := insertOutbox(ctx, tx, event); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repository) CancelOrder(ctx context.Context, o *orders.Order, from orders.Status) error {
	event, err := newEvent(o, orders.EventOrderCancelled)
	if err != nil {
		return fmt.Errorf("build outbox event: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = $1, updated_at = $2, cancelled_at = $3 WHERE id = $4 AND status = $5`,
		o.Status, o.UpdatedAt, o.CancelledAt, o.ID, from)
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	if err := guardTransition(res, from, o.Status); err != nil {
		return err
	}

	for _, d := range orders.StockDemand(o.Items) {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO variant_stock (variant_id, stock, updated_at) VALUES ($1, $2, NOW())
			 ON CONFLICT (variant_id) DO UPDATE SET stock = variant_stock.stock + EXCLUDED.stock, updated_at = NOW()`,
			d.VariantID, d.Quantity)
		if err != nil {
			return fmt.Errorf("restore stock for %s: %w", d.VariantID, err)
		}
	}

	if err := insertOutbox(ctx, tx, event); err != nil {
		return err
	}
	return tx.Commit()
}

func guardTransition(res sql.Result, from, to orders.Status) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return &orders.TransitionError{From: from, To: to}
	}
	return nil
}

func (r *Repository) SetStock(ctx context.Context, variantID string, qty int) error {
	if qty < 0 {
		return fmt.Errorf("%w: negative stock", orders.ErrInvalidOrder)
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO variant_stock (variant_id, stock, updated_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (variant_id) DO UPDATE SET stock = EXCLUDED.stock, updated_at = NOW()`,
		variantID, qty)
	if err != nil {
		return fmt.Errorf("set stock: %w", err)
	}
	return nil
}

func (r *Repository) GetStock(ctx context.Context, variantID string) (int, error) {
	var stock int
	err := r.db.QueryRowContext(ctx, `SELECT stock FROM variant_stock WHERE variant_id = $1`, variantID).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, orders.ErrVariantNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get stock: %w", err)
	}
	return stock, nil
}

func insertOutbox(ctx context.Context, tx *sql.Tx, e *OutboxEvent) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO outbox_events (aggregate_id, event_type, payload, created_at) VALUES ($1, $2, $3, $4)`,
		e.AggregateID, e.EventType, []byte(e.Payload), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func (r *Repository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, aggregate_id, event_type, payload, created_at FROM outbox_events
		 WHERE processed_at IS NULL ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var e OutboxEvent
		var payload []byte
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		e.Payload = payload
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *Repository) MarkEventAsProcessed(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE outbox_events SET processed_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark outbox event %d: %w", id, err)
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}
