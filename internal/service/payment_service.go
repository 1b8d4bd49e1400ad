package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"contentpay/internal/bizerr"
	"contentpay/internal/gateway"
	"contentpay/internal/model"
	"contentpay/internal/repository"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// 网关回调的支付结果
const (
	CallbackStatusSuccess = "success"
	CallbackStatusFailed  = "failed"
)

// CallbackRequest 外部网关回调
type CallbackRequest struct {
	OrderNo     string `json:"order_no" binding:"required"`
	PayStatus   string `json:"pay_status" binding:"required"`
	PayMethod   string `json:"pay_method"`
	ExternalRef string `json:"external_ref"`
}

// PaymentService 支付入口：主动确认与网关回调
type PaymentService struct {
	orderRepo  *repository.OrderRepository
	settlement *SettlementService
	confirmer  gateway.Confirmer
	timeout    time.Duration
}

func NewPaymentService(db *gorm.DB, settlement *SettlementService, confirmer gateway.Confirmer, timeout time.Duration) *PaymentService {
	return &PaymentService{
		orderRepo:  repository.NewOrderRepository(db),
		settlement: settlement,
		confirmer:  confirmer,
		timeout:    timeout,
	}
}

// ConfirmPayment 外部渠道支付先向网关确认（不持锁，带超时），再结算
// 确认失败或超时订单保持 pending，调用方可以用同一订单号重试
func (s *PaymentService) ConfirmPayment(ctx context.Context, orderNo, payMethod, externalRef string) (*model.Order, error) {
	order, err := s.orderRepo.GetByOrderNo(ctx, nil, orderNo)
	if err != nil {
		return nil, err
	}
	if order.PayStatus != model.PayStatusUnpaid {
		return order, nil
	}
	if order.Status != model.OrderStatusPending {
		return nil, model.CheckTransition(order.Status, model.OrderStatusPaid)
	}

	method := resolvePayMethod(order, payMethod)
	if err := checkPayMethod(order, method); err != nil {
		return nil, err
	}
	if model.IsExternalPayMethod(method) {
		if err := s.confirm(ctx, orderNo, method, externalRef); err != nil {
			return nil, err
		}
	}
	return s.settlement.Settle(ctx, orderNo, method, externalRef)
}

func (s *PaymentService) confirm(ctx context.Context, orderNo, payMethod, externalRef string) error {
	confirmCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.confirmer.Confirm(confirmCtx, orderNo, payMethod, externalRef)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		log.WithFields(log.Fields{"order_no": orderNo, "pay_method": payMethod}).Warn("[Payment] 网关确认超时")
		return bizerr.Newf(bizerr.ErrBusy, "支付渠道确认超时，请稍后重试: %s", orderNo)
	}
	if bizerr.KindOf(err) != 0 {
		return err
	}
	return fmt.Errorf("支付渠道确认失败: %w", err)
}

// HandleCallback 网关回调；成功即结算，失败只记录，订单留给超时任务关闭
func (s *PaymentService) HandleCallback(ctx context.Context, req *CallbackRequest) (*model.Order, error) {
	fields := log.Fields{
		"order_no":     req.OrderNo,
		"pay_status":   req.PayStatus,
		"pay_method":   req.PayMethod,
		"external_ref": req.ExternalRef,
	}
	switch req.PayStatus {
	case CallbackStatusSuccess:
		log.WithFields(fields).Info("[Payment] 收到支付成功回调")
		return s.settlement.Settle(ctx, req.OrderNo, req.PayMethod, req.ExternalRef)
	case CallbackStatusFailed:
		log.WithFields(fields).Info("[Payment] 收到支付失败回调")
		return s.orderRepo.GetByOrderNo(ctx, nil, req.OrderNo)
	}
	return nil, bizerr.Newf(bizerr.ErrInvalidArgument, "未知的回调支付状态: %s", req.PayStatus)
}
