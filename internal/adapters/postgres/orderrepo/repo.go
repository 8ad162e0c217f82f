package orderrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	postgres "github.com/Overland-East-Bay/storefront-api/internal/adapters/postgres"
	"github.com/Overland-East-Bay/storefront-api/internal/domain"
	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/orderrepo"
)

// Repo is a Postgres implementation of orderrepo.Repository.
type Repo struct {
	db postgres.DBTX
}

func NewRepo(db postgres.DBTX) *Repo {
	return &Repo{db: db}
}

const selectOrder = `
	SELECT id, COALESCE(cart_id, ''), status, payment_status, email, region_id, currency_code,
	       items, subtotal, shipping_total, total, payments, idempotency_key,
	       created_at, updated_at
	FROM orders
`

func (r *Repo) Create(ctx context.Context, o domain.Order) error {
	if r.db == nil {
		return errors.New("nil postgres db")
	}
	items, payments, err := encode(o)
	if err != nil {
		return err
	}
	var cartID *string
	if o.CartID != "" {
		v := string(o.CartID)
		cartID = &v
	}

	// ON CONFLICT keeps the surrounding transaction usable; the caller may want to load
	// the order that won.
	ct, err := r.db.Exec(ctx, `
		INSERT INTO orders (
			id, cart_id, status, payment_status, email, region_id, currency_code,
			items, subtotal, shipping_total, total, payments, idempotency_key,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT DO NOTHING
	`,
		string(o.ID),
		cartID,
		string(o.Status),
		string(o.PaymentStatus),
		o.Email,
		o.RegionID,
		o.CurrencyCode,
		items,
		o.Subtotal,
		o.ShippingTotal,
		o.Total,
		payments,
		o.IdempotencyKey,
		o.CreatedAt.UTC(),
		o.UpdatedAt.UTC(),
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.GetByID(ctx, o.ID); err == nil {
		return orderrepo.ErrAlreadyExists
	}
	return orderrepo.ErrCartAlreadyOrdered
}

func (r *Repo) Update(ctx context.Context, o domain.Order) error {
	if r.db == nil {
		return errors.New("nil postgres db")
	}
	items, payments, err := encode(o)
	if err != nil {
		return err
	}
	ct, err := r.db.Exec(ctx, `
		UPDATE orders
		SET status = $2,
		    payment_status = $3,
		    email = $4,
		    items = $5,
		    subtotal = $6,
		    shipping_total = $7,
		    total = $8,
		    payments = $9,
		    updated_at = $10
		WHERE id = $1
	`,
		string(o.ID),
		string(o.Status),
		string(o.PaymentStatus),
		o.Email,
		items,
		o.Subtotal,
		o.ShippingTotal,
		o.Total,
		payments,
		o.UpdatedAt.UTC(),
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return orderrepo.ErrNotFound
	}
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.OrderID) (domain.Order, error) {
	if r.db == nil {
		return domain.Order{}, errors.New("nil postgres db")
	}
	return scanOrder(r.db.QueryRow(ctx, selectOrder+` WHERE id = $1`, string(id)))
}

func (r *Repo) GetByCartID(ctx context.Context, cartID domain.CartID) (domain.Order, error) {
	if r.db == nil {
		return domain.Order{}, errors.New("nil postgres db")
	}
	return scanOrder(r.db.QueryRow(ctx, selectOrder+` WHERE cart_id = $1`, string(cartID)))
}

func encode(o domain.Order) ([]byte, []byte, error) {
	items := o.Items
	if items == nil {
		items = []domain.LineItem{}
	}
	payments := o.Payments
	if payments == nil {
		payments = []domain.Payment{}
	}
	ib, err := json.Marshal(items)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal items: %w", err)
	}
	pb, err := json.Marshal(payments)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal payments: %w", err)
	}
	return ib, pb, nil
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o                     domain.Order
		status, paymentStatus string
		items, payments       []byte
	)
	err := row.Scan(
		&o.ID,
		&o.CartID,
		&status,
		&paymentStatus,
		&o.Email,
		&o.RegionID,
		&o.CurrencyCode,
		&items,
		&o.Subtotal,
		&o.ShippingTotal,
		&o.Total,
		&payments,
		&o.IdempotencyKey,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, orderrepo.ErrNotFound
		}
		return domain.Order{}, err
	}
	o.Status = domain.OrderStatus(status)
	o.PaymentStatus = domain.PaymentStatus(paymentStatus)
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return domain.Order{}, fmt.Errorf("decode items: %w", err)
	}
	if err := json.Unmarshal(payments, &o.Payments); err != nil {
		return domain.Order{}, fmt.Errorf("decode payments: %w", err)
	}
	return o, nil
}
