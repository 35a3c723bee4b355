package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"shelf-deals/internal/core/domain"
	"shelf-deals/internal/core/port"
)

// fakeStockCache mirrors the Lua semantics of the redis adapter: atomic
// per-item decrement with a distinct miss outcome, cap-at-ceiling release.
type fakeStockCache struct {
	mu         sync.Mutex
	remaining  map[int64]int
	reserveErr error
}

func newFakeStockCache() *fakeStockCache {
	return &fakeStockCache{remaining: make(map[int64]int)}
}

func (c *fakeStockCache) Reserve(_ context.Context, itemID int64, qty int) (port.ReserveOutcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reserveErr != nil {
		return 0, c.reserveErr
	}
	cur, ok := c.remaining[itemID]
	if !ok {
		return port.ReserveMiss, nil
	}
	if cur < qty {
		return port.ReserveInsufficient, nil
	}
	c.remaining[itemID] = cur - qty
	return port.ReserveOK, nil
}

func (c *fakeStockCache) Release(_ context.Context, itemID int64, qty, ceiling int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.remaining[itemID]
	if !ok {
		return nil
	}
	cur += qty
	if cur > ceiling {
		cur = ceiling
	}
	c.remaining[itemID] = cur
	return nil
}

func (c *fakeStockCache) SetRemaining(_ context.Context, itemID int64, remaining int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remaining[itemID] = remaining
	return nil
}

func (c *fakeStockCache) InitRemaining(_ context.Context, itemID int64, remaining int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.remaining[itemID]; ok {
		return false, nil
	}
	c.remaining[itemID] = remaining
	return true, nil
}

func (c *fakeStockCache) DropRemaining(_ context.Context, itemIDs []int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range itemIDs {
		delete(c.remaining, id)
	}
	return nil
}

func (c *fakeStockCache) get(itemID int64) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.remaining[itemID]
	return v, ok
}

// fakeCampaignRepo is an in-memory campaign store. AddSold applies the
// same conditional write as the SQL adapter.
type fakeCampaignRepo struct {
	mu         sync.Mutex
	campaigns  map[int64]*domain.Campaign
	items      map[int64]*domain.CampaignItem
	nextID     int64
	conflicts  []int64
	updateErr  error
	addSoldErr error
	getItemErr error

	markExpiredCalls [][]int64
}

func newFakeCampaignRepo() *fakeCampaignRepo {
	return &fakeCampaignRepo{
		campaigns: make(map[int64]*domain.Campaign),
		items:     make(map[int64]*domain.CampaignItem),
	}
}

func (r *fakeCampaignRepo) seed(c domain.Campaign, items ...domain.CampaignItem) (*domain.Campaign, []*domain.CampaignItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == 0 {
		r.nextID++
		c.ID = r.nextID
	}
	stored := c
	r.campaigns[c.ID] = &stored
	out := make([]*domain.CampaignItem, 0, len(items))
	for _, item := range items {
		if item.ID == 0 {
			r.nextID++
			item.ID = r.nextID
		}
		item.CampaignID = c.ID
		itemCopy := item
		r.items[item.ID] = &itemCopy
		out = append(out, &itemCopy)
	}
	return &stored, out
}

func (r *fakeCampaignRepo) CreateCampaign(_ context.Context, c *domain.Campaign, items []domain.CampaignItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	c.ID = r.nextID
	stored := *c
	r.campaigns[c.ID] = &stored
	for i := range items {
		r.nextID++
		items[i].ID = r.nextID
		items[i].CampaignID = c.ID
		itemCopy := items[i]
		r.items[itemCopy.ID] = &itemCopy
	}
	return nil
}

func (r *fakeCampaignRepo) UpdateCampaign(_ context.Context, c *domain.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	if _, ok := r.campaigns[c.ID]; !ok {
		return port.ErrCampaignNotFound
	}
	stored := *c
	r.campaigns[c.ID] = &stored
	return nil
}

func (r *fakeCampaignRepo) GetCampaign(_ context.Context, id int64) (*domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, nil
	}
	out := *c
	return &out, nil
}

func (r *fakeCampaignRepo) UpdateStatus(_ context.Context, id int64, status domain.CampaignStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return port.ErrCampaignNotFound
	}
	c.Status = status
	return nil
}

func (r *fakeCampaignRepo) MarkExpired(_ context.Context, ids []int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markExpiredCalls = append(r.markExpiredCalls, append([]int64(nil), ids...))
	var n int64
	for _, id := range ids {
		c, ok := r.campaigns[id]
		if !ok {
			continue
		}
		if c.Status == domain.CampaignStatusScheduled || c.Status == domain.CampaignStatusActive {
			c.Status = domain.CampaignStatusExpired
			n++
		}
	}
	return n, nil
}

func (r *fakeCampaignRepo) ActivateDue(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, c := range r.campaigns {
		if c.ShouldActivate(now) {
			c.Status = domain.CampaignStatusActive
			n++
		}
	}
	return n, nil
}

func (r *fakeCampaignRepo) FindUnfinished(_ context.Context) ([]domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Campaign
	for _, c := range r.campaigns {
		if c.Status == domain.CampaignStatusScheduled || c.Status == domain.CampaignStatusActive {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeCampaignRepo) FindActiveOverlapping(context.Context, []int64, time.Time, time.Time, int64) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conflicts, nil
}

func (r *fakeCampaignRepo) FindItemsByCampaign(_ context.Context, campaignID int64) ([]domain.CampaignItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.CampaignItem
	for _, item := range r.items {
		if item.CampaignID == campaignID {
			out = append(out, *item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeCampaignRepo) GetItemWithCampaign(_ context.Context, itemID int64) (*domain.CampaignItem, *domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getItemErr != nil {
		return nil, nil, r.getItemErr
	}
	item, ok := r.items[itemID]
	if !ok {
		return nil, nil, nil
	}
	c, ok := r.campaigns[item.CampaignID]
	if !ok {
		return nil, nil, nil
	}
	itemOut, campaignOut := *item, *c
	return &itemOut, &campaignOut, nil
}

func (r *fakeCampaignRepo) BestActiveItemForBook(_ context.Context, bookID int64, now time.Time) (*domain.CampaignItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *domain.CampaignItem
	for _, item := range r.items {
		if item.BookID != bookID {
			continue
		}
		c, ok := r.campaigns[item.CampaignID]
		if !ok || !c.IsActive(now) {
			continue
		}
		if best == nil || item.SalePrice < best.SalePrice {
			out := *item
			best = &out
		}
	}
	return best, nil
}

func (r *fakeCampaignRepo) AddSold(_ context.Context, itemID int64, qty int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.addSoldErr != nil {
		return false, r.addSoldErr
	}
	item, ok := r.items[itemID]
	if !ok || item.SoldCount+qty > item.StockCeiling {
		return false, nil
	}
	item.SoldCount += qty
	return true, nil
}

func (r *fakeCampaignRepo) ReduceSold(_ context.Context, itemID int64, qty int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[itemID]
	if !ok {
		return nil
	}
	item.SoldCount -= qty
	if item.SoldCount < 0 {
		item.SoldCount = 0
	}
	return nil
}

func (r *fakeCampaignRepo) soldCount(itemID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[itemID].SoldCount
}

func (r *fakeCampaignRepo) status(id int64) domain.CampaignStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.campaigns[id].Status
}

// fakeCartRepo is an in-memory cart store. It reads campaign items from
// the shared fakeCampaignRepo to resolve campaign membership the way the
// SQL joins do.
type fakeCartRepo struct {
	mu        sync.Mutex
	campaigns *fakeCampaignRepo
	books     map[int64]*domain.Book
	lines     map[string]*domain.CartLineItem
	nextID    int64

	bulkCalls        [][]int64
	updateBindingErr error
}

func newFakeCartRepo(campaigns *fakeCampaignRepo) *fakeCartRepo {
	return &fakeCartRepo{
		campaigns: campaigns,
		books:     make(map[int64]*domain.Book),
		lines:     make(map[string]*domain.CartLineItem),
	}
}

func lineKey(userID string, bookID int64) string {
	return fmt.Sprintf("%s/%d", userID, bookID)
}

func (r *fakeCartRepo) addBook(b domain.Book) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := b
	r.books[b.ID] = &stored
}

func (r *fakeCartRepo) addLine(line domain.CartLineItem) *domain.CartLineItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	line.ID = r.nextID
	stored := line
	r.lines[lineKey(line.UserID, line.BookID)] = &stored
	return &stored
}

// itemCampaign resolves the owning campaign of a campaign item id.
func (r *fakeCartRepo) itemCampaign(itemID int64) (int64, bool) {
	r.campaigns.mu.Lock()
	defer r.campaigns.mu.Unlock()
	item, ok := r.campaigns.items[itemID]
	if !ok {
		return 0, false
	}
	return item.CampaignID, true
}

func (r *fakeCartRepo) BulkDetachAndReprice(_ context.Context, campaignIDs []int64, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bulkCalls = append(r.bulkCalls, append([]int64(nil), campaignIDs...))
	member := make(map[int64]struct{}, len(campaignIDs))
	for _, id := range campaignIDs {
		member[id] = struct{}{}
	}
	var n int64
	for _, line := range r.lines {
		if line.CampaignItemID == nil {
			continue
		}
		cid, ok := r.itemCampaign(*line.CampaignItemID)
		if !ok {
			continue
		}
		if _, hit := member[cid]; !hit {
			continue
		}
		line.CampaignItemID = nil
		if book, ok := r.books[line.BookID]; ok {
			line.UnitPrice = book.BasePrice
		}
		line.UpdatedAt = at
		n++
	}
	return n, nil
}

func (r *fakeCartRepo) FindRebindCandidates(_ context.Context, campaignID int64) ([]domain.CartLineItem, error) {
	items, _ := r.campaigns.FindItemsByCampaign(context.Background(), campaignID)
	covered := make(map[int64]struct{}, len(items))
	for _, item := range items {
		covered[item.BookID] = struct{}{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.CartLineItem
	for _, line := range r.lines {
		if _, ok := covered[line.BookID]; ok {
			out = append(out, *line)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeCartRepo) FindLineItemsByUser(_ context.Context, userID string) ([]domain.CartLineItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.CartLineItem
	for _, line := range r.lines {
		if line.UserID == userID {
			out = append(out, *line)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeCartRepo) GetLineItem(_ context.Context, userID string, bookID int64) (*domain.CartLineItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	line, ok := r.lines[lineKey(userID, bookID)]
	if !ok {
		return nil, nil
	}
	out := *line
	return &out, nil
}

func (r *fakeCartRepo) UpsertLineItem(_ context.Context, line *domain.CartLineItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := lineKey(line.UserID, line.BookID)
	if existing, ok := r.lines[key]; ok {
		line.ID = existing.ID
	} else {
		r.nextID++
		line.ID = r.nextID
	}
	stored := *line
	r.lines[key] = &stored
	return nil
}

func (r *fakeCartRepo) UpdateLineBinding(_ context.Context, lineID int64, campaignItemID *int64, unitPrice int64, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateBindingErr != nil {
		return r.updateBindingErr
	}
	for _, line := range r.lines {
		if line.ID != lineID {
			continue
		}
		line.CampaignItemID = campaignItemID
		line.UnitPrice = unitPrice
		line.Quantity = quantity
		return nil
	}
	return fmt.Errorf("cart line %d not found", lineID)
}

func (r *fakeCartRepo) DeleteLineItem(_ context.Context, userID string, bookID int64) (*domain.CartLineItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := lineKey(userID, bookID)
	line, ok := r.lines[key]
	if !ok {
		return nil, nil
	}
	delete(r.lines, key)
	out := *line
	return &out, nil
}

func (r *fakeCartRepo) GetBook(_ context.Context, bookID int64) (*domain.Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.books[bookID]
	if !ok {
		return nil, nil
	}
	out := *b
	return &out, nil
}

func (r *fakeCartRepo) line(userID string, bookID int64) *domain.CartLineItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	line, ok := r.lines[lineKey(userID, bookID)]
	if !ok {
		return nil
	}
	out := *line
	return &out
}

// fakeSched records the order of scheduler calls.
type fakeSched struct {
	mu  sync.Mutex
	ops []string
}

func (s *fakeSched) Schedule(campaignID int64, end time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, fmt.Sprintf("schedule:%d:%d", campaignID, end.UnixMilli()))
}

func (s *fakeSched) Cancel(campaignID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, fmt.Sprintf("cancel:%d", campaignID))
}

func (s *fakeSched) history() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ops...)
}
