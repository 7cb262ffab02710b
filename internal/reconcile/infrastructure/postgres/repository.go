package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quintlabs/payment-reconciliation/internal/reconcile/domain"
)

// Repository is the durable order ledger plus the buyer-scoped history
// mirror. Inserts are insert-if-absent on the order id: the engine owns
// deduplication, the store only enforces the unique key.
type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

// InsertIfAbsent writes the order, its line items and the outbox event
// in one transaction. Returns false without error when another writer
// got there first.
func (r *Repository) InsertIfAbsent(ctx context.Context, o domain.Order, eventType string, payload []byte) (bool, error) {
	customer, err := json.Marshal(o.Customer)
	if err != nil {
		return false, err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	ct, err := tx.Exec(ctx, `INSERT INTO orders (id, payment_id, amount_minor, items_summary, customer, status, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (id) DO NOTHING`,
		o.ID, o.PaymentID, o.AmountMinor, o.ItemsSummary, customer, o.Status, o.CreatedAt)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() == 0 {
		// Lost the race to a concurrent reconciliation pass.
		return false, tx.Commit(ctx)
	}

	batch := &pgx.Batch{}
	for _, item := range o.Items {
		batch.Queue(`INSERT INTO order_items (order_id, name, quantity, price_minor)
			VALUES ($1,$2,$3,$4)
			ON CONFLICT (order_id, name) DO NOTHING`,
			o.ID, item.Name, item.Quantity, item.PriceMinor)
	}
	batchResult := tx.SendBatch(ctx, batch)
	if err = batchResult.Close(); err != nil {
		return false, err
	}

	_, err = tx.Exec(ctx, `INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, status) VALUES ($1,$2,$3,$4,'pending')`,
		"order", o.ID, eventType, payload)
	if err != nil {
		return false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Repository) FindByOrderID(ctx context.Context, id string) (domain.Order, bool, error) {
	var o domain.Order
	var customer []byte
	err := r.pool.QueryRow(ctx, `SELECT id, payment_id, amount_minor, items_summary, customer, status, created_at FROM orders WHERE id=$1`, id).
		Scan(&o.ID, &o.PaymentID, &o.AmountMinor, &o.ItemsSummary, &customer, &o.Status, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, false, nil
	}
	if err != nil {
		return domain.Order{}, false, err
	}
	if err := json.Unmarshal(customer, &o.Customer); err != nil {
		return domain.Order{}, false, err
	}
	if o.Items, err = r.loadItems(ctx, o.ID); err != nil {
		return domain.Order{}, false, err
	}
	return o, true, nil
}

func (r *Repository) RecentByEmail(ctx context.Context, email string, since time.Time) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, payment_id, amount_minor, items_summary, customer, status, created_at
		FROM orders WHERE customer->>'email' = $1 AND created_at >= $2 ORDER BY created_at`, email, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		var customer []byte
		if err := rows.Scan(&o.ID, &o.PaymentID, &o.AmountMinor, &o.ItemsSummary, &customer, &o.Status, &o.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(customer, &o.Customer); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range orders {
		if orders[i].Items, err = r.loadItems(ctx, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// AppendToUserHistory mirrors the order into a buyer's personal list.
// Keyed on (account_id, order_id) so re-linking never duplicates.
func (r *Repository) AppendToUserHistory(ctx context.Context, accountID string, o domain.Order) (bool, error) {
	doc, err := json.Marshal(struct {
		OrderID     string            `json:"order_id"`
		PaymentID   string            `json:"payment_id"`
		AmountMinor int64             `json:"amount_minor"`
		Items       []domain.LineItem `json:"items"`
		Customer    domain.Customer   `json:"customer"`
		Status      string            `json:"status"`
		CreatedAt   time.Time         `json:"created_at"`
	}{o.ID, o.PaymentID, o.AmountMinor, o.Items, o.Customer, string(o.Status), o.CreatedAt})
	if err != nil {
		return false, err
	}

	ct, err := r.pool.Exec(ctx, `INSERT INTO user_orders (account_id, order_id, order_doc, created_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (account_id, order_id) DO NOTHING`,
		accountID, o.ID, doc, time.Now().UTC())
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (r *Repository) loadItems(ctx context.Context, orderID string) ([]domain.LineItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT name, quantity, price_minor FROM order_items WHERE order_id=$1`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.LineItem
	for rows.Next() {
		var it domain.LineItem
		if err := rows.Scan(&it.Name, &it.Quantity, &it.PriceMinor); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
