package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"datanexus-marketplace/internal/apperr"
	"datanexus-marketplace/internal/model"
)

type ProductRepository interface {
	Create(ctx context.Context, product *model.Product) error
	FindByID(ctx context.Context, productID string) (*model.Product, error)
	// IncrementPurchases bumps the purchase counter inside the caller's
	// transaction so the bump commits atomically with the order flip.
	IncrementPurchases(ctx context.Context, tx *gorm.DB, productID string) error
}

type productRepoImpl struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepoImpl{db: db}
}

func (r *productRepoImpl) Create(ctx context.Context, product *model.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *productRepoImpl) FindByID(ctx context.Context, productID string) (*model.Product, error) {
	var product model.Product
	err := r.db.WithContext(ctx).
		Where("id = ?", productID).
		First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "product %s not found", productID)
	}
	if err != nil {
		return nil, err
	}

	return &product, nil
}

func (r *productRepoImpl) IncrementPurchases(ctx context.Context, tx *gorm.DB, productID string) error {
	result := tx.WithContext(ctx).Model(&model.Product{}).
		Where("id = ?", productID).
		Update("purchases", gorm.Expr("purchases + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.New(apperr.CodeNotFound, "product %s not found", productID)
	}

	return nil
}
