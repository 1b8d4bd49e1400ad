package repository

import (
	"context"
	"errors"
	"time"

	"contentpay/internal/bizerr"
	"contentpay/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrOrderNotFound       = &bizerr.Error{Kind: bizerr.KindNotFound, Msg: "订单不存在"}
	ErrOrderStatusConflict = errors.New("订单状态已被并发修改")
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(order).Error
}

func (r *OrderRepository) GetByOrderNo(ctx context.Context, tx *gorm.DB, orderNo string) (*model.Order, error) {
	if tx == nil {
		tx = r.db
	}
	var order model.Order
	err := tx.WithContext(ctx).Where("order_no = ?", orderNo).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepository) GetByOrderNoForUpdate(ctx context.Context, tx *gorm.DB, orderNo string) (*model.Order, error) {
	var order model.Order
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_no = ?", orderNo).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// GetByRequestID 幂等ID按用户隔离，不存在时返回 nil, nil
func (r *OrderRepository) GetByRequestID(ctx context.Context, userID int64, requestID string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).Where("user_id = ? AND request_id = ?", userID, requestID).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// Transition 以 (status, pay_status, version) 为条件更新订单，防止并发覆盖
// 成功后把 updates 同步回 order
func (r *OrderRepository) Transition(ctx context.Context, tx *gorm.DB, order *model.Order, updates map[string]interface{}) error {
	if tx == nil {
		tx = r.db
	}
	updates["version"] = gorm.Expr("version + 1")
	result := tx.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND status = ? AND pay_status = ? AND version = ?",
			order.ID, order.Status, order.PayStatus, order.Version).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOrderStatusConflict
	}
	applyOrderUpdates(order, updates)
	return nil
}

func applyOrderUpdates(order *model.Order, updates map[string]interface{}) {
	order.Version++
	for k, v := range updates {
		switch k {
		case "status":
			order.Status = v.(string)
		case "pay_status":
			order.PayStatus = v.(string)
		case "pay_method":
			order.PayMethod = v.(string)
		case "external_ref":
			order.ExternalRef = v.(string)
		case "cash_reserved":
			order.CashReserved = v.(bool)
		case "cancel_reason":
			order.CancelReason = v.(string)
		case "refund_no":
			order.RefundNo = v.(string)
		case "refund_reason":
			order.RefundReason = v.(string)
		case "paid_at":
			order.PaidAt = v.(*time.Time)
		case "shipped_at":
			order.ShippedAt = v.(*time.Time)
		case "completed_at":
			order.CompletedAt = v.(*time.Time)
		case "cancelled_at":
			order.CancelledAt = v.(*time.Time)
		case "refunded_at":
			order.RefundedAt = v.(*time.Time)
		}
	}
}

func (r *OrderRepository) GetExpiredOrders(ctx context.Context, now time.Time, limit int) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND expired_at < ?", model.OrderStatusPending, now).
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

// GetShippedBefore 发货时间早于 before 仍未确认收货的已支付订单
// 已退款的发货订单不再自动完成
func (r *OrderRepository) GetShippedBefore(ctx context.Context, before time.Time, limit int) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND pay_status = ? AND shipped_at < ?", model.OrderStatusShipped, model.PayStatusPaid, before).
		Order("shipped_at ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func (r *OrderRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.Order, int64, error) {
	var orders []*model.Order
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Order{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&orders).Error

	return orders, total, err
}
