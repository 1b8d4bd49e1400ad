package service

import (
	"context"
)

// AccessResult 打开内容时的判定
type AccessResult struct {
	Allowed  bool           `json:"allowed"`
	Owned    bool           `json:"owned"`
	Decision AccessDecision `json:"decision"`
	Trial    *Trial         `json:"trial,omitempty"`
}

// AccessService 组合付费配置、购买记录与会员身份判定访问权限
type AccessService struct {
	content     *ContentPaymentService
	entitlement *EntitlementService
	vip         VipChecker
}

func NewAccessService(content *ContentPaymentService, entitlement *EntitlementService, vip VipChecker) *AccessService {
	return &AccessService{
		content:     content,
		entitlement: entitlement,
		vip:         vip,
	}
}

// CheckContentAccess 有效购买记录或配置判定为免费即可访问
func (s *AccessService) CheckContentAccess(ctx context.Context, userID, contentID int64) (bool, error) {
	owned, err := s.entitlement.CheckAccess(ctx, userID, contentID)
	if err != nil || owned {
		return owned, err
	}
	isVip, err := s.vip.IsVip(ctx, userID)
	if err != nil {
		return false, err
	}
	decision, err := s.content.ResolveAccess(ctx, contentID, isVip)
	if err != nil {
		return false, err
	}
	return decision.Kind == AccessFree, nil
}

// OpenContent 记录访问次数；无权访问时附带试读内容
func (s *AccessService) OpenContent(ctx context.Context, userID, contentID int64) (*AccessResult, error) {
	owned, err := s.entitlement.CheckAccess(ctx, userID, contentID)
	if err != nil {
		return nil, err
	}
	isVip, err := s.vip.IsVip(ctx, userID)
	if err != nil {
		return nil, err
	}
	decision, err := s.content.ResolveAccess(ctx, contentID, isVip)
	if err != nil {
		return nil, err
	}

	result := &AccessResult{
		Allowed:  owned || decision.Kind == AccessFree,
		Owned:    owned,
		Decision: decision,
	}
	if owned {
		if err := s.entitlement.RecordAccess(ctx, userID, contentID); err != nil {
			return nil, err
		}
	}
	if !result.Allowed {
		trial, ok, err := s.content.ResolveTrial(ctx, contentID)
		if err != nil {
			return nil, err
		}
		if ok {
			result.Trial = trial
		}
	}
	return result, nil
}
