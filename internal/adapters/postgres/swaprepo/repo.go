package swaprepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	postgres "github.com/Overland-East-Bay/storefront-api/internal/adapters/postgres"
	"github.com/Overland-East-Bay/storefront-api/internal/domain"
	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/swaprepo"
)

// Repo is a Postgres implementation of swaprepo.Repository.
type Repo struct {
	db postgres.DBTX
}

func NewRepo(db postgres.DBTX) *Repo {
	return &Repo{db: db}
}

func paymentJSON(p *domain.Payment) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payment: %w", err)
	}
	return b, nil
}

func (r *Repo) Create(ctx context.Context, s domain.Swap) error {
	if r.db == nil {
		return errors.New("nil postgres db")
	}
	payment, err := paymentJSON(s.Payment)
	if err != nil {
		return err
	}
	ct, err := r.db.Exec(ctx, `
		INSERT INTO swaps (
			id, order_id, cart_id, confirmed_at, payment, idempotency_key, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO NOTHING
	`,
		string(s.ID),
		string(s.OrderID),
		string(s.CartID),
		s.ConfirmedAt,
		payment,
		s.IdempotencyKey,
		s.CreatedAt.UTC(),
		s.UpdatedAt.UTC(),
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return swaprepo.ErrAlreadyExists
	}
	return nil
}

func (r *Repo) Update(ctx context.Context, s domain.Swap) error {
	if r.db == nil {
		return errors.New("nil postgres db")
	}
	payment, err := paymentJSON(s.Payment)
	if err != nil {
		return err
	}
	ct, err := r.db.Exec(ctx, `
		UPDATE swaps
		SET cart_id = $2,
		    confirmed_at = $3,
		    payment = $4,
		    updated_at = $5
		WHERE id = $1
	`,
		string(s.ID),
		string(s.CartID),
		s.ConfirmedAt,
		payment,
		s.UpdatedAt.UTC(),
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return swaprepo.ErrNotFound
	}
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.SwapID) (domain.Swap, error) {
	if r.db == nil {
		return domain.Swap{}, errors.New("nil postgres db")
	}
	var (
		s           domain.Swap
		confirmedAt *time.Time
		payment     []byte
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, order_id, cart_id, confirmed_at, payment, idempotency_key, created_at, updated_at
		FROM swaps
		WHERE id = $1
	`, string(id)).Scan(
		&s.ID,
		&s.OrderID,
		&s.CartID,
		&confirmedAt,
		&payment,
		&s.IdempotencyKey,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Swap{}, swaprepo.ErrNotFound
		}
		return domain.Swap{}, err
	}
	if confirmedAt != nil {
		v := confirmedAt.UTC()
		s.ConfirmedAt = &v
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	if len(payment) > 0 {
		var p domain.Payment
		if err := json.Unmarshal(payment, &p); err != nil {
			return domain.Swap{}, fmt.Errorf("decode payment: %w", err)
		}
		s.Payment = &p
	}
	return s, nil
}
