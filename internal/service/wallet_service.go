package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"gamemarket/internal/config"
	"gamemarket/internal/model"
	"gamemarket/internal/repository"
	"gamemarket/pkg/bizerr"
	"gamemarket/pkg/idgen"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	replayBatchSize = 500
)

type WalletService struct {
	db              *gorm.DB
	walletRepo      *repository.WalletRepository
	transactionRepo *repository.TransactionRepository
	orderRepo       *repository.OrderRepository
	settle          *settlement
}

func NewWalletService(db *gorm.DB, cfg *config.Config) *WalletService {
	return &WalletService{
		db:              db,
		walletRepo:      repository.NewWalletRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		orderRepo:       repository.NewOrderRepository(db),
		settle:          newSettlement(db, cfg),
	}
}

type RechargeRequest struct {
	UserID        int64           `json:"user_id" binding:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"method"`
	Description   string          `json:"description"`
	ThirdPartyRef string          `json:"third_party_ref"`
}

// ReconcileReport 单个钱包的对账结果
type ReconcileReport struct {
	UserID     int64           `json:"user_id"`
	Balance    decimal.Decimal `json:"balance"`
	LedgerSum  decimal.Decimal `json:"ledger_sum"`
	Entries    int64           `json:"entries"`
	ChainValid bool            `json:"chain_valid"` // 每条流水的 before/after 首尾相接
	Consistent bool            `json:"consistent"`
}

// validateAmount 金额必须大于0且最多两位小数
func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return bizerr.Params("金额必须大于0")
	}
	if !amount.Equal(amount.Round(2)) {
		return bizerr.Params("金额最多保留两位小数")
	}
	return nil
}

func validateUserID(userID int64) error {
	if userID <= 0 {
		return bizerr.Params("用户ID不合法: %d", userID)
	}
	return nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// GetWallet 获取钱包，不存在时创建一个余额为0的钱包
func (s *WalletService) GetWallet(ctx context.Context, userID int64) (*model.Wallet, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	wallet, err := s.walletRepo.GetOrCreate(ctx, nil, userID)
	if err != nil {
		return nil, bizerr.System("获取钱包失败", err)
	}
	return wallet, nil
}

// GetBalance 查询余额，钱包不存在时返回0
func (s *WalletService) GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	if err := validateUserID(userID); err != nil {
		return decimal.Zero, err
	}
	wallet, err := s.walletRepo.GetByUserID(ctx, nil, userID)
	if err != nil {
		if errors.Is(err, repository.ErrWalletNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, bizerr.System("查询余额失败", err)
	}
	return wallet.Balance, nil
}

// Recharge 充值，钱包不存在时自动创建
func (s *WalletService) Recharge(ctx context.Context, req *RechargeRequest) (*model.Wallet, error) {
	if err := validateUserID(req.UserID); err != nil {
		return nil, err
	}
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}

	if _, err := s.walletRepo.GetOrCreate(ctx, nil, req.UserID); err != nil {
		return nil, bizerr.System("获取钱包失败", err)
	}

	var wallet *model.Wallet
	err := s.settle.run(ctx, func(ctx context.Context, tx *gorm.DB) error {
		w, err := s.lockWallet(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if !w.IsActive() {
			return bizerr.ErrWalletFrozen
		}

		entry := &model.WalletTransaction{
			Type:        model.TransactionTypeRecharge,
			Amount:      req.Amount,
			Description: req.Description,
			BizNo:       idgen.GenerateRechargeNo(),
			Method:      req.Method,
		}
		if req.ThirdPartyRef != "" {
			ref := req.ThirdPartyRef
			entry.ThirdPartyRef = &ref
		}
		if err := s.applyEntry(ctx, tx, w, entry); err != nil {
			return err
		}
		if err := s.settle.walletEvent(ctx, tx, model.EventWalletRecharged, entry); err != nil {
			return err
		}
		wallet = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("充值成功",
		zap.Int64("user_id", req.UserID),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.String("balance", wallet.Balance.StringFixed(2)),
	)
	return wallet, nil
}

// Consume 直接从钱包扣款
//
// orderID 可选，用于关联订单：订单必须存在且属于 userID，
// 并且还没有扣款流水，流水的业务单号取订单号。
func (s *WalletService) Consume(ctx context.Context, userID int64, amount decimal.Decimal, description string, orderID *int64) (*model.Wallet, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if orderID != nil && *orderID <= 0 {
		return nil, bizerr.Params("订单ID不合法: %d", *orderID)
	}

	var wallet *model.Wallet
	err := s.settle.run(ctx, func(ctx context.Context, tx *gorm.DB) error {
		var bizNo string
		if orderID != nil {
			// 先锁订单，再锁钱包
			order, err := s.orderRepo.GetByIDForUpdate(ctx, tx, *orderID)
			if err != nil {
				return orderError(err)
			}
			if order.UserID != userID {
				return bizerr.Params("订单 %s 不属于用户 %d", order.OrderNo, userID)
			}
			bizNo = order.OrderNo
		}
		w, _, err := s.consume(ctx, tx, userID, amount, description, orderID, bizNo)
		wallet = w
		return err
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("扣款成功",
		zap.Int64("user_id", userID),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("balance", wallet.Balance.StringFixed(2)),
	)
	return wallet, nil
}

// Transfer 用户间转账，返回转账单号
//
// 转出和转入两条流水共用同一个转账单号，要么都写入，要么都不写入。
func (s *WalletService) Transfer(ctx context.Context, fromUserID, toUserID int64, amount decimal.Decimal, description string) (string, error) {
	if err := validateUserID(fromUserID); err != nil {
		return "", err
	}
	if err := validateUserID(toUserID); err != nil {
		return "", err
	}
	if fromUserID == toUserID {
		return "", bizerr.Params("不能给自己转账")
	}
	if err := validateAmount(amount); err != nil {
		return "", err
	}

	if _, err := s.walletRepo.GetByUserID(ctx, nil, fromUserID); err != nil {
		if errors.Is(err, repository.ErrWalletNotFound) {
			return "", bizerr.ErrWalletNotFound.WithMessage("转出钱包不存在")
		}
		return "", bizerr.System("获取钱包失败", err)
	}
	if _, err := s.walletRepo.GetOrCreate(ctx, nil, toUserID); err != nil {
		return "", bizerr.System("获取钱包失败", err)
	}

	transferNo := idgen.GenerateTransferNo()
	err := s.settle.run(ctx, func(ctx context.Context, tx *gorm.DB) error {
		locked, err := s.lockWallets(ctx, tx, fromUserID, toUserID)
		if err != nil {
			return err
		}
		from, to := locked[fromUserID], locked[toUserID]

		if !from.IsActive() {
			return bizerr.ErrWalletFrozen.WithMessage("转出钱包已冻结")
		}
		if !to.IsActive() {
			return bizerr.ErrWalletFrozen.WithMessage("转入钱包已冻结")
		}
		if from.Balance.LessThan(amount) {
			return bizerr.ErrInsufficientBalance.WithMessage("余额不足，当前余额: %s", from.Balance.StringFixed(2))
		}

		out := &model.WalletTransaction{
			Type:               model.TransactionTypeTransferOut,
			Amount:             amount,
			Description:        description,
			BizNo:              transferNo,
			CounterpartyUserID: &toUserID,
		}
		if err := s.applyEntry(ctx, tx, from, out); err != nil {
			return err
		}

		in := &model.WalletTransaction{
			Type:               model.TransactionTypeTransferIn,
			Amount:             amount,
			Description:        description,
			BizNo:              transferNo,
			CounterpartyUserID: &fromUserID,
		}
		if err := s.applyEntry(ctx, tx, to, in); err != nil {
			return err
		}

		return s.settle.walletEvent(ctx, tx, model.EventWalletTransferred, out)
	})
	if err != nil {
		return "", err
	}

	zap.L().Info("转账成功",
		zap.String("transfer_no", transferNo),
		zap.Int64("from_user_id", fromUserID),
		zap.Int64("to_user_id", toUserID),
		zap.String("amount", amount.StringFixed(2)),
	)
	return transferNo, nil
}

// FreezeWallet 冻结钱包，冻结后不能充值、扣款、转账、退款
func (s *WalletService) FreezeWallet(ctx context.Context, userID int64) error {
	return s.setStatus(ctx, userID, model.WalletStatusFrozen)
}

func (s *WalletService) UnfreezeWallet(ctx context.Context, userID int64) error {
	return s.setStatus(ctx, userID, model.WalletStatusActive)
}

func (s *WalletService) setStatus(ctx context.Context, userID int64, status string) error {
	if err := validateUserID(userID); err != nil {
		return err
	}

	err := s.settle.run(ctx, func(ctx context.Context, tx *gorm.DB) error {
		w, err := s.lockWallet(ctx, tx, userID)
		if err != nil {
			return err
		}
		if w.Status == status {
			return nil
		}
		return s.walletRepo.UpdateStatus(ctx, tx, w.ID, status)
	})
	if err != nil {
		return err
	}

	zap.L().Info("钱包状态变更", zap.Int64("user_id", userID), zap.String("status", status))
	return nil
}

// ListTransactions 分页查询流水，最新的在前
func (s *WalletService) ListTransactions(ctx context.Context, userID int64, page, pageSize int) ([]*model.WalletTransaction, int64, error) {
	if err := validateUserID(userID); err != nil {
		return nil, 0, err
	}
	page, pageSize = normalizePage(page, pageSize)

	list, total, err := s.transactionRepo.ListByUserID(ctx, userID, page, pageSize)
	if err != nil {
		return nil, 0, bizerr.System("查询流水失败", err)
	}
	return list, total, nil
}

// GetTransfer 按转账单号查询转出、转入两条流水
func (s *WalletService) GetTransfer(ctx context.Context, transferNo string) ([]*model.WalletTransaction, error) {
	if transferNo == "" {
		return nil, bizerr.Params("转账单号不能为空")
	}
	list, err := s.transactionRepo.ListByBizNo(ctx, transferNo)
	if err != nil {
		return nil, bizerr.System("查询转账失败", err)
	}
	if len(list) == 0 {
		return nil, bizerr.ErrNotFound.WithMessage("转账单不存在: %s", transferNo)
	}
	return list, nil
}

// Reconcile 回放全部流水并与当前余额比对
func (s *WalletService) Reconcile(ctx context.Context, userID int64) (*ReconcileReport, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}

	report := &ReconcileReport{UserID: userID, LedgerSum: decimal.Zero, ChainValid: true}
	err := s.settle.run(ctx, func(ctx context.Context, tx *gorm.DB) error {
		w, err := s.walletRepo.GetByUserIDForUpdate(ctx, tx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrWalletNotFound) {
				return bizerr.ErrWalletNotFound
			}
			return err
		}
		report.Balance = w.Balance

		return s.transactionRepo.Replay(ctx, tx, userID, replayBatchSize, func(entry *model.WalletTransaction) error {
			if !entry.BalanceBefore.Equal(report.LedgerSum) {
				report.ChainValid = false
			}
			report.LedgerSum = report.LedgerSum.Add(entry.SignedAmount())
			if !entry.BalanceAfter.Equal(report.LedgerSum) {
				report.ChainValid = false
			}
			report.Entries++
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	report.Consistent = report.ChainValid && report.Balance.Equal(report.LedgerSum)
	return report, nil
}

// lockWallet 在事务内锁定钱包行
func (s *WalletService) lockWallet(ctx context.Context, tx *gorm.DB, userID int64) (*model.Wallet, error) {
	w, err := s.walletRepo.GetByUserIDForUpdate(ctx, tx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrWalletNotFound) {
			return nil, bizerr.ErrWalletNotFound
		}
		return nil, err
	}
	return w, nil
}

// lockWallets 按 user_id 升序锁定多个钱包，所有操作遵守同一顺序才不会互相死锁
func (s *WalletService) lockWallets(ctx context.Context, tx *gorm.DB, userIDs ...int64) (map[int64]*model.Wallet, error) {
	sorted := append([]int64(nil), userIDs...)
	slices.Sort(sorted)

	locked := make(map[int64]*model.Wallet, len(sorted))
	for _, userID := range sorted {
		if _, ok := locked[userID]; ok {
			continue
		}
		w, err := s.lockWallet(ctx, tx, userID)
		if err != nil {
			return nil, err
		}
		locked[userID] = w
	}
	return locked, nil
}

// consume 扣款，调用方负责事务并已锁定关联的订单；订单支付与直接扣款共用
//
// 一个订单最多关联一条扣款流水。
func (s *WalletService) consume(ctx context.Context, tx *gorm.DB, userID int64, amount decimal.Decimal, description string, orderID *int64, bizNo string) (*model.Wallet, *model.WalletTransaction, error) {
	if orderID != nil {
		linked, err := s.transactionRepo.GetByOrderID(ctx, tx, *orderID, userID, model.TransactionTypeConsume)
		switch {
		case err == nil:
			return nil, nil, bizerr.ErrOrderStatusInvalid.WithMessage("订单已有扣款流水: %s", linked.TransactionNo)
		case !errors.Is(err, repository.ErrTransactionNotFound):
			return nil, nil, err
		}
	}

	w, err := s.lockWallet(ctx, tx, userID)
	if err != nil {
		return nil, nil, err
	}
	if !w.IsActive() {
		return nil, nil, bizerr.ErrWalletFrozen
	}
	if w.Balance.LessThan(amount) {
		return nil, nil, bizerr.ErrInsufficientBalance.WithMessage("余额不足，当前余额: %s", w.Balance.StringFixed(2))
	}

	entry := &model.WalletTransaction{
		Type:           model.TransactionTypeConsume,
		Amount:         amount,
		Description:    description,
		BizNo:          bizNo,
		RelatedOrderID: orderID,
	}
	if err := s.applyEntry(ctx, tx, w, entry); err != nil {
		return nil, nil, err
	}
	return w, entry, nil
}

// refund 退款入账，调用方负责事务
func (s *WalletService) refund(ctx context.Context, tx *gorm.DB, userID int64, amount decimal.Decimal, description string, orderID int64, bizNo string) (*model.WalletTransaction, error) {
	w, err := s.lockWallet(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if !w.IsActive() {
		return nil, bizerr.ErrWalletFrozen.WithMessage("钱包已冻结，无法退款")
	}

	entry := &model.WalletTransaction{
		Type:           model.TransactionTypeRefund,
		Amount:         amount,
		Description:    description,
		BizNo:          bizNo,
		RelatedOrderID: &orderID,
	}
	if err := s.applyEntry(ctx, tx, w, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// applyEntry 在已锁定的钱包上记一笔流水并写回余额
func (s *WalletService) applyEntry(ctx context.Context, tx *gorm.DB, w *model.Wallet, entry *model.WalletTransaction) error {
	before := w.Balance
	after := before.Add(entry.SignedAmount())
	if after.IsNegative() {
		return bizerr.ErrInsufficientBalance
	}

	entry.TransactionNo = idgen.GenerateTransactionNo()
	entry.UserID = w.UserID
	entry.BalanceBefore = before
	entry.BalanceAfter = after

	if err := s.walletRepo.UpdateBalance(ctx, tx, w.ID, after); err != nil {
		return fmt.Errorf("更新余额失败: %w", err)
	}
	if err := s.transactionRepo.Create(ctx, tx, entry); err != nil {
		return fmt.Errorf("记录流水失败: %w", err)
	}
	w.Balance = after
	return nil
}
