package handler

import (
	"strconv"

	"gamemarket/internal/service"
	"gamemarket/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	wallets *service.WalletService
	orders  *service.OrderService
}

func NewHandler(wallets *service.WalletService, orders *service.OrderService) *Handler {
	return &Handler{wallets: wallets, orders: orders}
}

func queryInt64(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Query(name), 10, 64)
	if err != nil {
		response.ParamError(c, name+" 参数错误")
		return 0, false
	}
	return v, true
}

func queryPage(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return page, pageSize
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return false
	}
	return true
}

// ============================================================
// 钱包相关接口
// ============================================================

// GetWallet 查询钱包，不存在时创建
// GET /api/v1/wallet?user_id=xxx
func (h *Handler) GetWallet(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}

	wallet, err := h.wallets.GetWallet(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, wallet)
}

// GetBalance 查询余额
// GET /api/v1/wallet/balance?user_id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}

	balance, err := h.wallets.GetBalance(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{
		"user_id": userID,
		"balance": balance.StringFixed(2),
	})
}

// ListTransactions 查询钱包流水
// GET /api/v1/wallet/transactions?user_id=xxx&page=1&page_size=20
func (h *Handler) ListTransactions(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}
	page, pageSize := queryPage(c)

	list, total, err := h.wallets.ListTransactions(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":      list,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// Recharge 充值
// POST /api/v1/wallet/recharge
func (h *Handler) Recharge(c *gin.Context) {
	var req service.RechargeRequest
	if !bindJSON(c, &req) {
		return
	}

	wallet, err := h.wallets.Recharge(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, wallet)
}

type ConsumeRequest struct {
	UserID      int64           `json:"user_id" binding:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	OrderID     *int64          `json:"order_id"`
}

// Consume 直接扣款
// POST /api/v1/wallet/consume
func (h *Handler) Consume(c *gin.Context) {
	var req ConsumeRequest
	if !bindJSON(c, &req) {
		return
	}

	wallet, err := h.wallets.Consume(c.Request.Context(), req.UserID, req.Amount, req.Description, req.OrderID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, wallet)
}

type TransferRequest struct {
	FromUserID  int64           `json:"from_user_id" binding:"required"`
	ToUserID    int64           `json:"to_user_id" binding:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// Transfer 转账
// POST /api/v1/wallet/transfer
func (h *Handler) Transfer(c *gin.Context) {
	var req TransferRequest
	if !bindJSON(c, &req) {
		return
	}

	transferNo, err := h.wallets.Transfer(c.Request.Context(), req.FromUserID, req.ToUserID, req.Amount, req.Description)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"transfer_no": transferNo})
}

// GetTransfer 查询转账单
// GET /api/v1/wallet/transfer?transfer_no=xxx
func (h *Handler) GetTransfer(c *gin.Context) {
	list, err := h.wallets.GetTransfer(c.Request.Context(), c.Query("transfer_no"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, list)
}

type WalletStatusRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
}

// FreezeWallet 冻结钱包
// POST /api/v1/wallet/freeze
func (h *Handler) FreezeWallet(c *gin.Context) {
	var req WalletStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.wallets.FreezeWallet(c.Request.Context(), req.UserID); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "钱包已冻结"})
}

// UnfreezeWallet 解冻钱包
// POST /api/v1/wallet/unfreeze
func (h *Handler) UnfreezeWallet(c *gin.Context) {
	var req WalletStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.wallets.UnfreezeWallet(c.Request.Context(), req.UserID); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "钱包已解冻"})
}

// Reconcile 单个钱包对账
// GET /api/v1/wallet/reconcile?user_id=xxx
func (h *Handler) Reconcile(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}

	report, err := h.wallets.Reconcile(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, report)
}

// ============================================================
// 订单相关接口
// ============================================================

// CreateOrder 创建订单
// POST /api/v1/order/create
func (h *Handler) CreateOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, order)
}

// GetOrderStatus 查询订单状态
// GET /api/v1/order/status?order_id=xxx
func (h *Handler) GetOrderStatus(c *gin.Context) {
	orderID, ok := queryInt64(c, "order_id")
	if !ok {
		return
	}

	status, err := h.orders.GetOrderStatus(c.Request.Context(), orderID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{
		"order_id": orderID,
		"status":   status,
	})
}

// GetOrder 查询订单详情，order_id 和 order_no 二选一
// GET /api/v1/order/detail?order_id=xxx
func (h *Handler) GetOrder(c *gin.Context) {
	if orderNo := c.Query("order_no"); orderNo != "" {
		order, err := h.orders.GetOrderByNo(c.Request.Context(), orderNo)
		if err != nil {
			response.FromError(c, err)
			return
		}
		response.Success(c, order)
		return
	}

	orderID, ok := queryInt64(c, "order_id")
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, order)
}

// ListOrders 查询用户订单列表
// GET /api/v1/order/list?user_id=xxx&page=1&page_size=20
func (h *Handler) ListOrders(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}
	page, pageSize := queryPage(c)

	orders, total, err := h.orders.ListUserOrders(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":      orders,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

type PayOrderRequest struct {
	OrderID       int64  `json:"order_id" binding:"required"`
	PaymentMethod string `json:"payment_method"` // 为空时使用下单时的支付方式
}

// PayOrder 支付订单
// POST /api/v1/order/pay
func (h *Handler) PayOrder(c *gin.Context) {
	var req PayOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	order, err := h.orders.PayOrder(c.Request.Context(), req.OrderID, req.PaymentMethod)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, order)
}

type OrderReasonRequest struct {
	OrderID int64  `json:"order_id" binding:"required"`
	Reason  string `json:"reason"`
}

// CancelOrder 取消订单
// POST /api/v1/order/cancel
func (h *Handler) CancelOrder(c *gin.Context) {
	var req OrderReasonRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.orders.CancelOrder(c.Request.Context(), req.OrderID, req.Reason); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "订单已取消"})
}

// RefundOrder 退款，钱包支付的订单退回钱包
// POST /api/v1/order/refund
func (h *Handler) RefundOrder(c *gin.Context) {
	var req OrderReasonRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.orders.RefundOrder(c.Request.Context(), req.OrderID, req.Reason); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "退款成功"})
}
