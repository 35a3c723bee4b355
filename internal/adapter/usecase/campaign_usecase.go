package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"shelf-deals/internal/core/domain"
	"shelf-deals/internal/core/port"
)

// ExpirationScheduler is the slice of the scheduler the admin usecase
// drives. Both calls only mutate in-memory state and are safe to make
// while holding the per-campaign lock.
type ExpirationScheduler interface {
	Schedule(campaignID int64, end time.Time)
	Cancel(campaignID int64)
}

// CampaignUseCase implements port.CampaignUseCase. Admin mutations on one
// campaign are serialized by a per-campaign advisory lock so that a
// cancel-then-reschedule edit can never interleave with another edit and
// fire on the abandoned instant.
type CampaignUseCase struct {
	campaigns port.CampaignRepository
	cache     port.StockCache
	sched     ExpirationScheduler
	sync      *CartSynchronizer
	logger    *slog.Logger
	now       func() time.Time

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewCampaignUseCase wires the admin usecase.
func NewCampaignUseCase(campaigns port.CampaignRepository, cache port.StockCache, sched ExpirationScheduler, cartSync *CartSynchronizer, logger *slog.Logger) *CampaignUseCase {
	return &CampaignUseCase{
		campaigns: campaigns,
		cache:     cache,
		sched:     sched,
		sync:      cartSync,
		logger:    logger,
		now:       time.Now,
		locks:     make(map[int64]*sync.Mutex),
	}
}

// lockCampaign takes the advisory lock for one campaign id and returns the
// unlock func. Lock entries are kept for the process lifetime; the set of
// campaigns edited concurrently is small.
func (u *CampaignUseCase) lockCampaign(id int64) func() {
	u.mu.Lock()
	l, ok := u.locks[id]
	if !ok {
		l = &sync.Mutex{}
		u.locks[id] = l
	}
	u.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func validateDraft(draft port.CampaignDraft) error {
	if draft.Name == "" {
		return fmt.Errorf("campaign name is required")
	}
	if !draft.StartAt.Before(draft.EndAt) {
		return fmt.Errorf("campaign start %s must precede end %s", draft.StartAt, draft.EndAt)
	}
	if len(draft.Items) == 0 {
		return fmt.Errorf("campaign needs at least one item")
	}
	seen := make(map[int64]struct{}, len(draft.Items))
	for _, item := range draft.Items {
		if item.SalePrice <= 0 {
			return fmt.Errorf("sale price for book %d must be positive", item.BookID)
		}
		if item.StockCeiling < 0 {
			return fmt.Errorf("stock ceiling for book %d must not be negative", item.BookID)
		}
		if _, dup := seen[item.BookID]; dup {
			return fmt.Errorf("book %d listed twice", item.BookID)
		}
		seen[item.BookID] = struct{}{}
	}
	return nil
}

func draftBookIDs(draft port.CampaignDraft) []int64 {
	ids := make([]int64, 0, len(draft.Items))
	for _, item := range draft.Items {
		ids = append(ids, item.BookID)
	}
	return ids
}

// Create validates and persists a new campaign, seeds the stock counters,
// registers the expiration and rebinds matching cart lines when the
// window is already open. A book covered by another unfinished campaign
// with an intersecting window is rejected with ErrSchedulingConflict.
func (u *CampaignUseCase) Create(ctx context.Context, draft port.CampaignDraft) (*domain.Campaign, []domain.Adjustment, error) {
	if err := validateDraft(draft); err != nil {
		return nil, nil, err
	}
	conflicts, err := u.campaigns.FindActiveOverlapping(ctx, draftBookIDs(draft), draft.StartAt, draft.EndAt, 0)
	if err != nil {
		return nil, nil, err
	}
	if len(conflicts) > 0 {
		return nil, nil, fmt.Errorf("books %v already on sale in an overlapping window: %w", conflicts, port.ErrSchedulingConflict)
	}

	now := u.now()
	status := domain.CampaignStatusScheduled
	if !now.Before(draft.StartAt) {
		status = domain.CampaignStatusActive
	}
	campaign := &domain.Campaign{
		Name:    draft.Name,
		StartAt: draft.StartAt,
		EndAt:   draft.EndAt,
		Status:  status,
	}
	items := make([]domain.CampaignItem, len(draft.Items))
	for i, d := range draft.Items {
		items[i] = domain.CampaignItem{
			BookID:       d.BookID,
			SalePrice:    d.SalePrice,
			StockCeiling: d.StockCeiling,
		}
	}
	if err := u.campaigns.CreateCampaign(ctx, campaign, items); err != nil {
		return nil, nil, err
	}
	for _, item := range items {
		if err := u.cache.SetRemaining(ctx, item.ID, item.StockCeiling); err != nil {
			u.logger.Warn("could not seed stock counter",
				slog.Int64("item_id", item.ID), slog.Any("error", err))
		}
	}
	u.sched.Schedule(campaign.ID, campaign.EndAt)

	adjustments, err := u.sync.OnCampaignUpserted(ctx, campaign.ID)
	if err != nil {
		u.logger.Warn("cart rebind after create failed",
			slog.Int64("campaign_id", campaign.ID), slog.Any("error", err))
	}
	u.logger.Info("campaign created",
		slog.Int64("campaign_id", campaign.ID),
		slog.String("status", string(campaign.Status)),
		slog.Time("end", campaign.EndAt))
	return campaign, adjustments, nil
}

// Update renames or moves the window of an unfinished campaign. Under the
// campaign's advisory lock the pending expiration is cancelled before the
// new end is registered, so a concurrent batch can never fire the old
// instant for the edited campaign. Item lists are fixed at creation; only
// name and window move.
func (u *CampaignUseCase) Update(ctx context.Context, id int64, draft port.CampaignDraft) (*domain.Campaign, []domain.Adjustment, error) {
	if draft.Name == "" {
		return nil, nil, fmt.Errorf("campaign name is required")
	}
	if !draft.StartAt.Before(draft.EndAt) {
		return nil, nil, fmt.Errorf("campaign start %s must precede end %s", draft.StartAt, draft.EndAt)
	}
	unlock := u.lockCampaign(id)
	defer unlock()

	campaign, err := u.campaigns.GetCampaign(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if campaign == nil {
		return nil, nil, fmt.Errorf("campaign %d: %w", id, port.ErrCampaignNotFound)
	}
	if campaign.Status == domain.CampaignStatusExpired || campaign.Status == domain.CampaignStatusCancelled {
		return nil, nil, fmt.Errorf("campaign %d already %s: %w", id, campaign.Status, port.ErrSchedulingConflict)
	}
	items, err := u.campaigns.FindItemsByCampaign(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	bookIDs := make([]int64, 0, len(items))
	for _, item := range items {
		bookIDs = append(bookIDs, item.BookID)
	}
	conflicts, err := u.campaigns.FindActiveOverlapping(ctx, bookIDs, draft.StartAt, draft.EndAt, id)
	if err != nil {
		return nil, nil, err
	}
	if len(conflicts) > 0 {
		return nil, nil, fmt.Errorf("books %v already on sale in an overlapping window: %w", conflicts, port.ErrSchedulingConflict)
	}

	u.sched.Cancel(id)
	oldEnd := campaign.EndAt

	now := u.now()
	campaign.Name = draft.Name
	campaign.StartAt = draft.StartAt
	campaign.EndAt = draft.EndAt
	if now.Before(draft.StartAt) {
		campaign.Status = domain.CampaignStatusScheduled
	} else {
		campaign.Status = domain.CampaignStatusActive
	}
	if err := u.campaigns.UpdateCampaign(ctx, campaign); err != nil {
		// The campaign still holds its old window; put the old schedule back.
		u.sched.Schedule(id, oldEnd)
		return nil, nil, err
	}
	u.sched.Schedule(id, campaign.EndAt)

	adjustments, err := u.sync.OnCampaignUpserted(ctx, id)
	if err != nil {
		u.logger.Warn("cart rebind after update failed",
			slog.Int64("campaign_id", id), slog.Any("error", err))
	}
	u.logger.Info("campaign rescheduled",
		slog.Int64("campaign_id", id), slog.Time("end", campaign.EndAt))
	return campaign, adjustments, nil
}

// Cancel finalizes the campaign as cancelled: the pending expiration is
// dropped, the status persisted and affected cart lines detached and
// repriced, exactly as on expiry.
func (u *CampaignUseCase) Cancel(ctx context.Context, id int64) error {
	unlock := u.lockCampaign(id)
	defer unlock()

	campaign, err := u.campaigns.GetCampaign(ctx, id)
	if err != nil {
		return err
	}
	if campaign == nil {
		return fmt.Errorf("campaign %d: %w", id, port.ErrCampaignNotFound)
	}
	if campaign.Status == domain.CampaignStatusExpired || campaign.Status == domain.CampaignStatusCancelled {
		return fmt.Errorf("campaign %d already %s: %w", id, campaign.Status, port.ErrSchedulingConflict)
	}

	u.sched.Cancel(id)
	if err := u.campaigns.UpdateStatus(ctx, id, domain.CampaignStatusCancelled); err != nil {
		return err
	}
	if err := u.sync.OnCampaignCancelled(ctx, id); err != nil {
		return err
	}
	u.logger.Info("campaign cancelled", slog.Int64("campaign_id", id))
	return nil
}

// Get returns the campaign with its items. A scheduled campaign whose
// window has opened is promoted to active on the way out; only the end
// transition needs a precise timer.
func (u *CampaignUseCase) Get(ctx context.Context, id int64) (*domain.Campaign, []domain.CampaignItem, error) {
	campaign, err := u.campaigns.GetCampaign(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if campaign == nil {
		return nil, nil, fmt.Errorf("campaign %d: %w", id, port.ErrCampaignNotFound)
	}
	if campaign.ShouldActivate(u.now()) {
		if err := u.campaigns.UpdateStatus(ctx, id, domain.CampaignStatusActive); err != nil {
			u.logger.Warn("lazy activation failed",
				slog.Int64("campaign_id", id), slog.Any("error", err))
		} else {
			campaign.Status = domain.CampaignStatusActive
		}
	}
	items, err := u.campaigns.FindItemsByCampaign(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return campaign, items, nil
}
