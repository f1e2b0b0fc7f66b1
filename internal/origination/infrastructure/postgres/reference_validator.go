package postgres

import (
	"context"

	"origen/internal/origination/domain"
)

// ReferenceValidator implements domain.ReferenceValidator against the
// origination reference tables owned by the surrounding CRUD services.
type ReferenceValidator struct {
	db Executor
}

// NewReferenceValidator creates a new ReferenceValidator.
func NewReferenceValidator(db Executor) *ReferenceValidator {
	return &ReferenceValidator{db: db}
}

func (v *ReferenceValidator) exists(ctx context.Context, query string, id int64) (bool, error) {
	var ok bool
	err := v.db.QueryRow(ctx, query, id).Scan(&ok)
	return ok, err
}

// ClientExists reports whether the client/prospect id resolves.
func (v *ReferenceValidator) ClientExists(ctx context.Context, id int64) (bool, error) {
	return v.exists(ctx, `SELECT EXISTS (SELECT 1 FROM origination.clients WHERE id = $1)`, id)
}

// VehicleExists reports whether the vehicle id resolves.
func (v *ReferenceValidator) VehicleExists(ctx context.Context, id int64) (bool, error) {
	return v.exists(ctx, `SELECT EXISTS (SELECT 1 FROM origination.vehicles WHERE id = $1)`, id)
}

// SellerExists reports whether the seller id resolves.
func (v *ReferenceValidator) SellerExists(ctx context.Context, id int64) (bool, error) {
	return v.exists(ctx, `SELECT EXISTS (SELECT 1 FROM origination.sellers WHERE id = $1)`, id)
}

// Verify interface implementation.
var _ domain.ReferenceValidator = (*ReferenceValidator)(nil)
