package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/database"
	"storefront/internal/models"
)

type CouponRepository struct {
	db *database.DB
}

func NewCouponRepository(db *database.DB) *CouponRepository {
	return &CouponRepository{db: db}
}

// GetByCode looks a coupon up case-insensitively.
func (r *CouponRepository) GetByCode(ctx context.Context, code string) (*models.Coupon, error) {
	query := `
		SELECT code, discount_type, value, is_active, expires_at
		FROM coupons
		WHERE UPPER(code) = $1`

	coupon := &models.Coupon{}
	err := r.db.Conn(ctx).GetContext(ctx, coupon, query, strings.ToUpper(strings.TrimSpace(code)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrCouponNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}
	return coupon, nil
}
