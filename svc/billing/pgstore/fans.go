package pgstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrymomot/creatorpay/pkg/pg"
	"github.com/dmitrymomot/creatorpay/svc/billing"
)

// FanDirectory implements billing.FanDirectory on the fans table.
type FanDirectory struct {
	db DB
}

func NewFanDirectory(db DB) *FanDirectory {
	if db == nil {
		panic("pgstore: db is required")
	}
	return &FanDirectory{db: db}
}

func (d *FanDirectory) Fan(ctx context.Context, id uuid.UUID) (billing.Fan, error) {
	f := billing.Fan{ID: id}
	err := d.db.QueryRow(ctx, `SELECT email, display_name, paddle_customer_id, paddle_address_id FROM fans WHERE id = $1`, id).
		Scan(&f.Email, &f.DisplayName, &f.PaddleCustomerID, &f.PaddleAddressID)
	if pg.IsNotFoundError(err) {
		return billing.Fan{}, billing.ErrFanNotFound
	}
	if err != nil {
		return billing.Fan{}, fmt.Errorf("get fan: %w", err)
	}
	return f, nil
}

// Upsert stores or updates a fan's contact and payment data.
func (d *FanDirectory) Upsert(ctx context.Context, f billing.Fan) error {
	_, err := d.db.Exec(ctx, `INSERT INTO fans (id, email, display_name, paddle_customer_id, paddle_address_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, display_name = EXCLUDED.display_name,
			paddle_customer_id = EXCLUDED.paddle_customer_id, paddle_address_id = EXCLUDED.paddle_address_id`,
		f.ID, f.Email, f.DisplayName, f.PaddleCustomerID, f.PaddleAddressID)
	if err != nil {
		return fmt.Errorf("upsert fan: %w", err)
	}
	return nil
}

// AccessStore implements billing.AccessControl on the content_access table.
type AccessStore struct {
	db DB
}

func NewAccessStore(db DB) *AccessStore {
	if db == nil {
		panic("pgstore: db is required")
	}
	return &AccessStore{db: db}
}

func (s *AccessStore) Grant(ctx context.Context, fanID, creatorID uuid.UUID) error {
	return s.set(ctx, fanID, creatorID, true)
}

func (s *AccessStore) Revoke(ctx context.Context, fanID, creatorID uuid.UUID) error {
	return s.set(ctx, fanID, creatorID, false)
}

// HasAccess reports the stored entitlement; unknown pairs have none.
func (s *AccessStore) HasAccess(ctx context.Context, fanID, creatorID uuid.UUID) (bool, error) {
	var granted bool
	err := s.db.QueryRow(ctx, `SELECT granted FROM content_access WHERE fan_id = $1 AND creator_id = $2`,
		fanID, creatorID).Scan(&granted)
	if pg.IsNotFoundError(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get content access: %w", err)
	}
	return granted, nil
}

func (s *AccessStore) set(ctx context.Context, fanID, creatorID uuid.UUID, granted bool) error {
	_, err := s.db.Exec(ctx, `INSERT INTO content_access (fan_id, creator_id, granted, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (fan_id, creator_id) DO UPDATE SET granted = EXCLUDED.granted, updated_at = now()`,
		fanID, creatorID, granted)
	if err != nil {
		return fmt.Errorf("set content access: %w", err)
	}
	return nil
}
