package handler

import (
	"strconv"

	"contentpay/internal/model"
	"contentpay/internal/service"
	"contentpay/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	svc *service.Services
}

func NewHandler(svc *service.Services) *Handler {
	return &Handler{svc: svc}
}

func queryInt64(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Query(name), 10, 64)
	if err != nil || v <= 0 {
		response.ParamError(c, name+" 参数错误")
		return 0, false
	}
	return v, true
}

func queryPage(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	return page, pageSize
}

// ============================================================
// 钱包
// ============================================================

// GetBalance 查询钱包余额
// GET /api/v1/wallet/balance?user_id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}
	snap, err := h.svc.Wallet.GetBalance(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, snap)
}

// ListLedger 查询资金流水
// GET /api/v1/wallet/ledger?user_id=xxx&page=1&page_size=10
func (h *Handler) ListLedger(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}
	page, pageSize := queryPage(c)
	entries, total, err := h.svc.Wallet.History(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":      entries,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 订单
// ============================================================

// CreateOrderRequest 创建订单请求
// 现金订单 amount 为金额（元），金币订单为金币数量
type CreateOrderRequest struct {
	RequestID        string          `json:"request_id"` // 幂等ID，可选
	UserID           int64           `json:"user_id" binding:"required"`
	GoodsType        string          `json:"goods_type" binding:"required"`
	PaymentMode      string          `json:"payment_mode" binding:"required"`
	Amount           decimal.Decimal `json:"amount"`
	PayMethod        string          `json:"pay_method"`
	GoodsID          int64           `json:"goods_id"`
	ContentID        int64           `json:"content_id"`
	CoinAmount       int64           `json:"coin_amount"`
	SubscriptionDays int             `json:"subscription_days"`
	Quantity         int             `json:"quantity"`
}

// CreateOrder 创建订单
// POST /api/v1/order/create
func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	order, err := h.svc.Order.CreateOrder(c.Request.Context(), &service.CreateOrderRequest{
		UserID:      req.UserID,
		GoodsType:   req.GoodsType,
		PaymentMode: req.PaymentMode,
		Amount:      req.Amount,
		PayMethod:   req.PayMethod,
		RequestID:   req.RequestID,
		GoodsRef: service.GoodsRef{
			GoodsID:          req.GoodsID,
			ContentID:        req.ContentID,
			CoinAmount:       req.CoinAmount,
			SubscriptionDays: req.SubscriptionDays,
			Quantity:         req.Quantity,
		},
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, gin.H{
		"order_no":    order.OrderNo,
		"status":      order.Status,
		"pay_status":  order.PayStatus,
		"cash_amount": order.CashAmount,
		"coin_cost":   order.CoinCost,
		"expired_at":  order.ExpiredAt,
	})
}

// GetOrder 查询订单详情
// GET /api/v1/order/detail?order_no=xxx
func (h *Handler) GetOrder(c *gin.Context) {
	orderNo := c.Query("order_no")
	if orderNo == "" {
		response.ParamError(c, "order_no 参数不能为空")
		return
	}

	order, err := h.svc.Order.GetOrder(c.Request.Context(), orderNo)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, order)
}

// ListOrders 查询用户订单列表
// GET /api/v1/order/list?user_id=xxx&page=1&page_size=10
func (h *Handler) ListOrders(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}
	page, pageSize := queryPage(c)

	orders, total, err := h.svc.Order.ListUserOrders(c.Request.Context(), userID, page, pageSize)
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

// OrderActionRequest 针对单个订单的操作，user_id 为 0 表示系统或运营操作
type OrderActionRequest struct {
	OrderNo string `json:"order_no" binding:"required"`
	UserID  int64  `json:"user_id"`
	Reason  string `json:"reason"`
}

// CancelOrder 取消订单，已支付未发货的订单同时全额退款
// POST /api/v1/order/cancel
func (h *Handler) CancelOrder(c *gin.Context) {
	var req OrderActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.svc.Order.CancelOrder(c.Request.Context(), req.OrderNo, req.Reason, req.UserID); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "订单已取消"})
}

// ShipOrder 实物订单发货
// POST /api/v1/order/ship
func (h *Handler) ShipOrder(c *gin.Context) {
	var req OrderActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	order, err := h.svc.Order.Ship(c.Request.Context(), req.OrderNo)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, order)
}

// ConfirmReceipt 确认收货
// POST /api/v1/order/receipt
func (h *Handler) ConfirmReceipt(c *gin.Context) {
	var req OrderActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	order, err := h.svc.Order.ConfirmReceipt(c.Request.Context(), req.OrderNo, req.UserID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, order)
}

// ============================================================
// 支付与退款
// ============================================================

// ConfirmPaymentRequest 确认支付请求
type ConfirmPaymentRequest struct {
	OrderNo     string `json:"order_no" binding:"required"`
	PayMethod   string `json:"pay_method"`
	ExternalRef string `json:"external_ref"`
}

// ConfirmPayment 确认支付并结算
// POST /api/v1/pay/confirm
//
// 外部渠道先向网关确认，确认失败订单保持待支付，可以重试
func (h *Handler) ConfirmPayment(c *gin.Context) {
	var req ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	order, err := h.svc.Payment.ConfirmPayment(c.Request.Context(), req.OrderNo, req.PayMethod, req.ExternalRef)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, order)
}

// PayCallback 支付网关回调
// POST /api/v1/pay/callback
func (h *Handler) PayCallback(c *gin.Context) {
	var req service.CallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	order, err := h.svc.Payment.HandleCallback(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{
		"order_no":   order.OrderNo,
		"status":     order.Status,
		"pay_status": order.PayStatus,
	})
}

// RefundOrderRequest 退款请求，只支持全额退款，amount 不传表示订单全额
type RefundOrderRequest struct {
	OrderNo string          `json:"order_no" binding:"required"`
	Amount  decimal.Decimal `json:"amount"`
	Reason  string          `json:"reason"`
}

// RefundOrder 退款
// POST /api/v1/refund/execute
func (h *Handler) RefundOrder(c *gin.Context) {
	var req RefundOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	order, err := h.svc.Settlement.RefundSettle(c.Request.Context(), req.OrderNo, req.Reason, req.Amount)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{
		"order_no":   order.OrderNo,
		"refund_no":  order.RefundNo,
		"status":     order.Status,
		"pay_status": order.PayStatus,
	})
}

// ============================================================
// 内容付费
// ============================================================

// CheckAccess 是否可以访问内容
// GET /api/v1/content/access?user_id=xxx&content_id=xxx
func (h *Handler) CheckAccess(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}
	contentID, ok := queryInt64(c, "content_id")
	if !ok {
		return
	}

	allowed, err := h.svc.Access.CheckContentAccess(c.Request.Context(), userID, contentID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"allowed": allowed})
}

// OpenContent 打开内容，无权访问时返回试读内容
// GET /api/v1/content/open?user_id=xxx&content_id=xxx
func (h *Handler) OpenContent(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}
	contentID, ok := queryInt64(c, "content_id")
	if !ok {
		return
	}

	result, err := h.svc.Access.OpenContent(c.Request.Context(), userID, contentID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}

// GetContentPayment 查询付费配置
// GET /api/v1/content/payment?content_id=xxx
func (h *Handler) GetContentPayment(c *gin.Context) {
	contentID, ok := queryInt64(c, "content_id")
	if !ok {
		return
	}

	cfg, err := h.svc.ContentPayment.GetConfig(c.Request.Context(), contentID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if cfg == nil {
		response.Error(c, response.CodeNotFound, "内容未配置付费")
		return
	}
	response.Success(c, cfg)
}

// SaveContentPayment 发布或修改付费配置
// POST /api/v1/content/payment
func (h *Handler) SaveContentPayment(c *gin.Context) {
	var cfg model.ContentPayment
	if err := c.ShouldBindJSON(&cfg); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	if cfg.ContentID <= 0 {
		response.ParamError(c, "content_id 参数错误")
		return
	}
	// 统计字段只由消费端维护
	cfg.ID, cfg.TotalSales, cfg.TotalRevenue = 0, 0, 0

	if err := h.svc.ContentPayment.SaveConfig(c.Request.Context(), &cfg); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "保存成功"})
}

// ListPurchases 用户购买记录
// GET /api/v1/content/purchases?user_id=xxx&page=1&page_size=10
func (h *Handler) ListPurchases(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}
	page, pageSize := queryPage(c)

	list, total, err := h.svc.Entitlement.ListByUser(c.Request.Context(), userID, page, pageSize)
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

// GetVipStatus 会员状态
// GET /api/v1/vip/status?user_id=xxx
func (h *Handler) GetVipStatus(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}

	expireAt, err := h.svc.Vip.GetExpireAt(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	isVip, err := h.svc.Vip.IsVip(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{
		"is_vip":    isVip,
		"expire_at": expireAt,
	})
}
