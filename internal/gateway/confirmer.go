// Package gateway 外部支付网关的确认边界，真实渠道接入不在本服务内实现。
package gateway

import (
	"context"
	"sync"
	"time"

	"contentpay/internal/bizerr"

	log "github.com/sirupsen/logrus"
)

// Confirmer 向外部网关确认一笔支付是否真实到账
type Confirmer interface {
	Confirm(ctx context.Context, orderNo, payMethod, externalRef string) error
}

// MockConfirmer 本地联调用的网关，可配置是否放行与响应延迟
type MockConfirmer struct {
	mu       sync.Mutex
	approve  bool
	delay    time.Duration
	declined map[string]bool
}

func NewMockConfirmer(approve bool, delay time.Duration) *MockConfirmer {
	return &MockConfirmer{
		approve:  approve,
		delay:    delay,
		declined: make(map[string]bool),
	}
}

// Decline 指定某个外部流水号拒绝
func (m *MockConfirmer) Decline(externalRef string) {
	m.mu.Lock()
	m.declined[externalRef] = true
	m.mu.Unlock()
}

func (m *MockConfirmer) Confirm(ctx context.Context, orderNo, payMethod, externalRef string) error {
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.delay):
		}
	}

	m.mu.Lock()
	declined := !m.approve || m.declined[externalRef]
	m.mu.Unlock()

	if externalRef == "" {
		return bizerr.Newf(bizerr.ErrInvalidArgument, "外部支付流水号不能为空")
	}
	if declined {
		log.WithFields(log.Fields{
			"order_no":     orderNo,
			"pay_method":   payMethod,
			"external_ref": externalRef,
		}).Info("[Gateway] 支付确认被拒绝")
		return bizerr.Newf(bizerr.ErrPaymentFailed, "支付渠道未确认到账: %s", externalRef)
	}
	return nil
}
