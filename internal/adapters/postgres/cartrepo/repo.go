package cartrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	postgres "github.com/Overland-East-Bay/storefront-api/internal/adapters/postgres"
	"github.com/Overland-East-Bay/storefront-api/internal/domain"
	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/cartrepo"
)

// Repo is a Postgres implementation of cartrepo.Repository.
// Line items, payment sessions, the payment and metadata are stored as JSONB.
type Repo struct {
	db postgres.DBTX
}

func NewRepo(db postgres.DBTX) *Repo {
	return &Repo{db: db}
}

type cartJSON struct {
	items    []byte
	sessions []byte
	payment  []byte
	metadata []byte
}

func encode(c domain.Cart) (cartJSON, error) {
	var (
		out cartJSON
		err error
	)
	items := c.Items
	if items == nil {
		items = []domain.LineItem{}
	}
	if out.items, err = json.Marshal(items); err != nil {
		return cartJSON{}, fmt.Errorf("marshal items: %w", err)
	}
	sessions := c.PaymentSessions
	if sessions == nil {
		sessions = []domain.PaymentSession{}
	}
	if out.sessions, err = json.Marshal(sessions); err != nil {
		return cartJSON{}, fmt.Errorf("marshal payment sessions: %w", err)
	}
	if c.Payment != nil {
		if out.payment, err = json.Marshal(c.Payment); err != nil {
			return cartJSON{}, fmt.Errorf("marshal payment: %w", err)
		}
	}
	if c.Metadata != nil {
		if out.metadata, err = json.Marshal(c.Metadata); err != nil {
			return cartJSON{}, fmt.Errorf("marshal metadata: %w", err)
		}
	}
	return out, nil
}

func (r *Repo) Create(ctx context.Context, c domain.Cart) error {
	if r.db == nil {
		return errors.New("nil postgres db")
	}
	j, err := encode(c)
	if err != nil {
		return err
	}
	// ON CONFLICT keeps the surrounding transaction usable after a duplicate.
	ct, err := r.db.Exec(ctx, `
		INSERT INTO carts (
			id, type, email, region_id, currency_code, items, shipping_total,
			payment_sessions, payment, payment_authorized_at, completed_at, metadata,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO NOTHING
	`,
		string(c.ID),
		string(c.Type),
		c.Email,
		c.RegionID,
		c.CurrencyCode,
		j.items,
		c.ShippingTotal,
		j.sessions,
		j.payment,
		utcPtr(c.PaymentAuthorizedAt),
		utcPtr(c.CompletedAt),
		j.metadata,
		c.CreatedAt.UTC(),
		c.UpdatedAt.UTC(),
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return cartrepo.ErrAlreadyExists
	}
	return nil
}

func (r *Repo) Update(ctx context.Context, c domain.Cart) error {
	if r.db == nil {
		return errors.New("nil postgres db")
	}
	j, err := encode(c)
	if err != nil {
		return err
	}
	ct, err := r.db.Exec(ctx, `
		UPDATE carts
		SET type = $2,
		    email = $3,
		    region_id = $4,
		    currency_code = $5,
		    items = $6,
		    shipping_total = $7,
		    payment_sessions = $8,
		    payment = $9,
		    payment_authorized_at = $10,
		    completed_at = $11,
		    metadata = $12,
		    updated_at = $13
		WHERE id = $1
	`,
		string(c.ID),
		string(c.Type),
		c.Email,
		c.RegionID,
		c.CurrencyCode,
		j.items,
		c.ShippingTotal,
		j.sessions,
		j.payment,
		utcPtr(c.PaymentAuthorizedAt),
		utcPtr(c.CompletedAt),
		j.metadata,
		c.UpdatedAt.UTC(),
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return cartrepo.ErrNotFound
	}
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.CartID) (domain.Cart, error) {
	if r.db == nil {
		return domain.Cart{}, errors.New("nil postgres db")
	}
	var (
		c                         domain.Cart
		typ                       string
		items, sessions           []byte
		payment, metadata         []byte
		authorizedAt, completedAt *time.Time
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, type, email, region_id, currency_code, items, shipping_total,
		       payment_sessions, payment, payment_authorized_at, completed_at, metadata,
		       created_at, updated_at
		FROM carts
		WHERE id = $1
	`, string(id)).Scan(
		&c.ID,
		&typ,
		&c.Email,
		&c.RegionID,
		&c.CurrencyCode,
		&items,
		&c.ShippingTotal,
		&sessions,
		&payment,
		&authorizedAt,
		&completedAt,
		&metadata,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Cart{}, cartrepo.ErrNotFound
		}
		return domain.Cart{}, err
	}
	c.Type = domain.CartType(typ)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	c.PaymentAuthorizedAt = utcPtr(authorizedAt)
	c.CompletedAt = utcPtr(completedAt)

	if err := json.Unmarshal(items, &c.Items); err != nil {
		return domain.Cart{}, fmt.Errorf("decode items: %w", err)
	}
	if err := json.Unmarshal(sessions, &c.PaymentSessions); err != nil {
		return domain.Cart{}, fmt.Errorf("decode payment sessions: %w", err)
	}
	if len(payment) > 0 {
		var p domain.Payment
		if err := json.Unmarshal(payment, &p); err != nil {
			return domain.Cart{}, fmt.Errorf("decode payment: %w", err)
		}
		c.Payment = &p
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
			return domain.Cart{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return c, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
