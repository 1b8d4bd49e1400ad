package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"contentpay/internal/bizerr"
	"contentpay/internal/model"
	"contentpay/internal/repository"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AccessKind 内容访问判定结果
type AccessKind int

const (
	AccessFree    AccessKind = iota + 1 // 免费可看
	AccessPaid                          // 需购买
	AccessVipOnly                       // 会员专享，会员需购买
	AccessDenied                        // 非会员不可购买
)

func (k AccessKind) String() string {
	switch k {
	case AccessFree:
		return "free"
	case AccessPaid:
		return "paid"
	case AccessVipOnly:
		return "vip_only"
	case AccessDenied:
		return "denied"
	}
	return "unknown"
}

func (k AccessKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

type AccessDecision struct {
	Kind          AccessKind `json:"kind"`
	Price         int64      `json:"price"`
	OriginalPrice int64      `json:"original_price"`
}

// Purchasable Paid 与 VipOnly 都可以下单
func (d AccessDecision) Purchasable() bool {
	return d.Kind == AccessPaid || d.Kind == AccessVipOnly
}

// Decide 纯函数：只依赖配置与会员标记
func Decide(cfg *model.ContentPayment, isVip bool) AccessDecision {
	if cfg == nil || !cfg.IsActive() || cfg.IsFree() {
		return AccessDecision{Kind: AccessFree}
	}
	if cfg.VipOnly && !isVip {
		return AccessDecision{Kind: AccessDenied}
	}
	if isVip && (cfg.PaymentType == model.PaymentTypeVipFree || cfg.VipFree) {
		return AccessDecision{Kind: AccessFree}
	}
	if cfg.VipOnly {
		return AccessDecision{Kind: AccessVipOnly, Price: cfg.CoinPrice, OriginalPrice: cfg.OriginalPrice}
	}
	return AccessDecision{Kind: AccessPaid, Price: cfg.CoinPrice, OriginalPrice: cfg.OriginalPrice}
}

type Trial struct {
	Content   string `json:"content"`
	WordCount int    `json:"word_count"`
}

const cacheMissMarker = "none"

func contentPaymentCacheKey(contentID int64) string {
	return fmt.Sprintf("content:payment:%d", contentID)
}

// ContentPaymentService 内容付费配置，购买流程只读
type ContentPaymentService struct {
	repo     *repository.ContentPaymentRepository
	rdb      *redis.Client
	cacheTTL time.Duration
}

func NewContentPaymentService(db *gorm.DB, rdb *redis.Client, cacheTTL time.Duration) *ContentPaymentService {
	return &ContentPaymentService{
		repo:     repository.NewContentPaymentRepository(db),
		rdb:      rdb,
		cacheTTL: cacheTTL,
	}
}

// GetConfig 先读缓存再读库，不存在返回 nil, nil；缓存异常时直接读库
func (s *ContentPaymentService) GetConfig(ctx context.Context, contentID int64) (*model.ContentPayment, error) {
	key := contentPaymentCacheKey(contentID)
	if s.rdb != nil {
		val, err := s.rdb.Get(ctx, key).Result()
		switch {
		case err == nil && val == cacheMissMarker:
			return nil, nil
		case err == nil:
			var cfg model.ContentPayment
			if jsonErr := json.Unmarshal([]byte(val), &cfg); jsonErr == nil {
				return &cfg, nil
			}
		case !errors.Is(err, redis.Nil):
			log.WithError(err).WithField("content_id", contentID).Warn("[ContentPayment] 读取缓存失败")
		}
	}

	cfg, err := s.repo.GetByContentID(ctx, contentID)
	if err != nil && !errors.Is(err, repository.ErrContentPaymentNotFound) {
		return nil, err
	}
	if errors.Is(err, repository.ErrContentPaymentNotFound) {
		cfg = nil
	}
	s.fillCache(ctx, key, cfg)
	return cfg, nil
}

func (s *ContentPaymentService) fillCache(ctx context.Context, key string, cfg *model.ContentPayment) {
	if s.rdb == nil {
		return
	}
	val := cacheMissMarker
	if cfg != nil {
		b, err := json.Marshal(cfg)
		if err != nil {
			return
		}
		val = string(b)
	}
	if err := s.rdb.Set(ctx, key, val, s.cacheTTL).Err(); err != nil {
		log.WithError(err).WithField("key", key).Warn("[ContentPayment] 写入缓存失败")
	}
}

func (s *ContentPaymentService) Invalidate(ctx context.Context, contentID int64) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, contentPaymentCacheKey(contentID)).Err(); err != nil {
		log.WithError(err).WithField("content_id", contentID).Warn("[ContentPayment] 删除缓存失败")
	}
}

func (s *ContentPaymentService) ResolveAccess(ctx context.Context, contentID int64, isVip bool) (AccessDecision, error) {
	cfg, err := s.GetConfig(ctx, contentID)
	if err != nil {
		return AccessDecision{}, err
	}
	return Decide(cfg, isVip), nil
}

// ResolveTrial 未开启试读返回 false
func (s *ContentPaymentService) ResolveTrial(ctx context.Context, contentID int64) (*Trial, bool, error) {
	cfg, err := s.GetConfig(ctx, contentID)
	if err != nil {
		return nil, false, err
	}
	if cfg == nil || !cfg.IsActive() || !cfg.TrialEnabled {
		return nil, false, nil
	}
	return &Trial{Content: cfg.TrialContent, WordCount: cfg.TrialWordCount}, true, nil
}

// SaveConfig 作者/管理员发布或修改付费配置
func (s *ContentPaymentService) SaveConfig(ctx context.Context, cfg *model.ContentPayment) error {
	if cfg.Status == "" {
		cfg.Status = model.ContentPaymentActive
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := s.repo.Upsert(ctx, cfg); err != nil {
		return fmt.Errorf("保存付费配置失败: %w", err)
	}
	s.Invalidate(ctx, cfg.ContentID)
	log.WithFields(log.Fields{
		"content_id":   cfg.ContentID,
		"payment_type": cfg.PaymentType,
		"coin_price":   cfg.CoinPrice,
	}).Info("[ContentPayment] 付费配置已保存")
	return nil
}

func (s *ContentPaymentService) SetStatus(ctx context.Context, contentID int64, status string) error {
	if status != model.ContentPaymentActive && status != model.ContentPaymentInactive {
		return bizerr.Newf(bizerr.ErrInvalidArgument, "未知的配置状态: %s", status)
	}
	if err := s.repo.UpdateStatus(ctx, contentID, status); err != nil {
		return err
	}
	s.Invalidate(ctx, contentID)
	return nil
}

// AddSales 销量统计，退款时传负数
func (s *ContentPaymentService) AddSales(ctx context.Context, tx *gorm.DB, contentID, sales, revenue int64) error {
	return s.repo.IncrementStats(ctx, tx, contentID, sales, revenue)
}
