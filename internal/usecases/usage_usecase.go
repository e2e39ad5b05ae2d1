package usecases

import (
	"context"

	"github.com/cockroachdb/errors"

	"krishibondhu/internal/entities"
	"krishibondhu/internal/interfaces"
)

var ErrQuotaExceeded = errors.New("daily advisory limit reached")

type QuotaStatus struct {
	DailyLimit int `json:"daily_limit"`
	TodayUsed  int `json:"today_used"`
	Remaining  int `json:"remaining"`
	Percent    int `json:"percent"`
}

// UsageUsecase enforces the per-user daily advisory quota over the usage log.
// A limit of zero or less means unlimited.
type UsageUsecase struct {
	store      interfaces.UsageStore
	dailyLimit int
}

func NewUsageUsecase(store interfaces.UsageStore, dailyLimit int) *UsageUsecase {
	return &UsageUsecase{store: store, dailyLimit: dailyLimit}
}

// GetQuotaStatus returns today's usage for userID against the daily limit.
// Remaining is -1 when the quota is unlimited.
func (u *UsageUsecase) GetQuotaStatus(ctx context.Context, userID string) (*QuotaStatus, error) {
	used, err := u.store.CountToday(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "count today's usage")
	}

	status := &QuotaStatus{DailyLimit: u.dailyLimit, TodayUsed: used}
	if u.dailyLimit <= 0 {
		status.Remaining = -1
		return status, nil
	}
	status.Remaining = max(0, u.dailyLimit-used)
	status.Percent = min(100, used*100/u.dailyLimit)
	return status, nil
}

// CheckQuota returns ErrQuotaExceeded once userID has spent today's quota.
func (u *UsageUsecase) CheckQuota(ctx context.Context, userID string) error {
	if u.dailyLimit <= 0 {
		return nil
	}
	used, err := u.store.CountToday(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "count today's usage")
	}
	if used >= u.dailyLimit {
		return errors.WithDetailf(ErrQuotaExceeded, "%d of %d used", used, u.dailyLimit)
	}
	return nil
}

func (u *UsageUsecase) Summary(ctx context.Context) ([]entities.UsageSummary, error) {
	summary, err := u.store.Summary(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "summarize usage")
	}
	return summary, nil
}
