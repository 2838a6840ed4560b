package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/database"
	"storefront/internal/models"
)

// CatalogRepository reads products, variants, sizes and bundles and adjusts
// per-size stock.
type CatalogRepository struct {
	db *database.DB
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(db *database.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

const variantSizeSelect = `
	SELECT vs.variant_id, vs.size_id, p.id AS product_id, p.name AS product_name,
	       p.category, p.moq_class, c.name AS color_name, s.name AS size_name,
	       COALESCE(NULLIF(pv.image_url, ''), p.image_url) AS image_url,
	       vs.price, vs.stock
	FROM variant_sizes vs
	JOIN product_variants pv ON pv.id = vs.variant_id
	JOIN products p ON p.id = pv.product_id
	JOIN colors c ON c.id = pv.color_id
	JOIN sizes s ON s.id = vs.size_id
	WHERE vs.variant_id = $1 AND vs.size_id = $2`

// GetVariantSize returns price, stock and display data for a (variant, size).
func (r *CatalogRepository) GetVariantSize(ctx context.Context, variantID, sizeID int) (*models.VariantSize, error) {
	return r.getVariantSize(ctx, variantSizeSelect, variantID, sizeID)
}

// LockVariantSize is GetVariantSize holding a row lock on the stock row
// until the surrounding transaction ends.
func (r *CatalogRepository) LockVariantSize(ctx context.Context, variantID, sizeID int) (*models.VariantSize, error) {
	return r.getVariantSize(ctx, variantSizeSelect+"\n\tFOR UPDATE OF vs", variantID, sizeID)
}

func (r *CatalogRepository) getVariantSize(ctx context.Context, query string, variantID, sizeID int) (*models.VariantSize, error) {
	vs := &models.VariantSize{}
	err := r.db.Conn(ctx).GetContext(ctx, vs, query, variantID, sizeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrVariantSizeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get variant %d size %d: %w", variantID, sizeID, err)
	}
	return vs, nil
}

// GetBundle returns an active bundle with its base product classification.
func (r *CatalogRepository) GetBundle(ctx context.Context, bundleID int) (*models.Bundle, error) {
	query := `
		SELECT b.id, b.product_id, b.name, b.bundle_type, b.bundle_price,
		       COALESCE(NULLIF(b.image_url, ''), p.image_url) AS image_url, b.is_active,
		       p.name AS product_name, p.category, p.moq_class
		FROM bundles b
		JOIN products p ON p.id = b.product_id
		WHERE b.id = $1 AND b.is_active = TRUE`

	bundle := &models.Bundle{}
	err := r.db.Conn(ctx).GetContext(ctx, bundle, query, bundleID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrBundleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bundle %d: %w", bundleID, err)
	}
	return bundle, nil
}

// DecrementStock removes qty units only when at least qty are available.
func (r *CatalogRepository) DecrementStock(ctx context.Context, variantID, sizeID, qty int) error {
	query := `
		UPDATE variant_sizes
		SET stock = stock - $3
		WHERE variant_id = $1 AND size_id = $2 AND stock >= $3`

	result, err := r.db.Conn(ctx).ExecContext(ctx, query, variantID, sizeID, qty)
	if err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return models.ErrInsufficientStock
	}
	return nil
}

// IncrementStock returns qty units to a (variant, size).
func (r *CatalogRepository) IncrementStock(ctx context.Context, variantID, sizeID, qty int) error {
	query := `
		UPDATE variant_sizes
		SET stock = stock + $3
		WHERE variant_id = $1 AND size_id = $2`

	result, err := r.db.Conn(ctx).ExecContext(ctx, query, variantID, sizeID, qty)
	if err != nil {
		return fmt.Errorf("failed to restock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return models.ErrVariantSizeNotFound
	}
	return nil
}
