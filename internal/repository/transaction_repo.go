package repository

import (
	"context"
	"errors"

	"gamemarket/internal/model"

	"gorm.io/gorm"
)

var ErrTransactionNotFound = errors.New("流水不存在")

// TransactionRepository 钱包流水，只提供追加和查询
type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.WalletTransaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(trans).Error
}

// GetByOrderID 查询某用户在订单上的某类流水
func (r *TransactionRepository) GetByOrderID(ctx context.Context, tx *gorm.DB, orderID, userID int64, txType string) (*model.WalletTransaction, error) {
	if tx == nil {
		tx = r.db
	}
	var trans model.WalletTransaction
	err := tx.WithContext(ctx).
		Where("related_order_id = ? AND user_id = ? AND type = ?", orderID, userID, txType).
		Order("id ASC").
		First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &trans, nil
}

func (r *TransactionRepository) ListByBizNo(ctx context.Context, bizNo string) ([]*model.WalletTransaction, error) {
	var transactions []*model.WalletTransaction
	err := r.db.WithContext(ctx).
		Where("biz_no = ?", bizNo).
		Order("id ASC").
		Find(&transactions).Error
	return transactions, err
}

func (r *TransactionRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.WalletTransaction, int64, error) {
	var transactions []*model.WalletTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.WalletTransaction{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&transactions).Error

	return transactions, total, err
}

// Replay 按写入顺序分批遍历某个用户的全部流水
func (r *TransactionRepository) Replay(ctx context.Context, tx *gorm.DB, userID int64, batchSize int, fn func(*model.WalletTransaction) error) error {
	if tx == nil {
		tx = r.db
	}
	var batch []*model.WalletTransaction
	result := tx.WithContext(ctx).
		Where("user_id = ?", userID).
		FindInBatches(&batch, batchSize, func(_ *gorm.DB, _ int) error {
			for _, trans := range batch {
				if err := fn(trans); err != nil {
					return err
				}
			}
			return nil
		})
	return result.Error
}
