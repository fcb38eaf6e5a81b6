package service_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	appErrors "github.com/b2stos/nexuszap-sub000/internal/errors"
	"github.com/b2stos/nexuszap-sub000/internal/model"
	"github.com/b2stos/nexuszap-sub000/internal/provider"
	"github.com/b2stos/nexuszap-sub000/internal/quota"
	"github.com/b2stos/nexuszap-sub000/internal/repository"
	"github.com/b2stos/nexuszap-sub000/internal/service"
)

// In-memory fakes shared by the service tests. They enforce the same
// transition rules as the SQL repositories so the tests exercise real
// state-machine behavior, not mock wiring.

type memStore struct {
	mu         sync.Mutex
	campaigns  map[int]*model.Campaign
	recipients map[int]*model.Recipient
	channels   map[int]*model.Channel
	contacts   map[int]*model.Contact
	templates  map[int]*model.Template
	events     map[int]*model.WebhookEvent
	eventKeys  map[string]bool
	nextID     int
}

func newMemStore() *memStore {
	return &memStore{
		campaigns:  map[int]*model.Campaign{},
		recipients: map[int]*model.Recipient{},
		channels:   map[int]*model.Channel{},
		contacts:   map[int]*model.Contact{},
		templates:  map[int]*model.Template{},
		events:     map[int]*model.WebhookEvent{},
		eventKeys:  map[string]bool{},
		nextID:     1,
	}
}

func (s *memStore) id() int {
	id := s.nextID
	s.nextID++
	return id
}

// ---------------- campaign repo ----------------

type memCampaignRepo struct{ s *memStore }

func (m *memCampaignRepo) CreateWithRecipients(c *model.Campaign, contactIDs []int) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	if c.Speed == "" {
		c.Speed = model.SpeedNormal
	}
	c.ID = m.s.id()
	c.CreatedAt = time.Now()

	seen := map[int]bool{}
	for _, contactID := range contactIDs {
		if seen[contactID] {
			continue
		}
		seen[contactID] = true
		rec := &model.Recipient{
			ID:         m.s.id(),
			CampaignID: c.ID,
			ContactID:  contactID,
			Status:     model.RecipientQueued,
			CreatedAt:  time.Now(),
			UpdatedAt:  time.Now(),
		}
		m.s.recipients[rec.ID] = rec
	}
	c.TotalRecipients = len(seen)
	m.s.campaigns[c.ID] = c
	return nil
}

func (m *memCampaignRepo) GetByID(id int) (*model.Campaign, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c, ok := m.s.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (m *memCampaignRepo) ListCampaigns(offset, limit int, status string) ([]*model.Campaign, int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	all := []*model.Campaign{}
	for _, c := range m.s.campaigns {
		if status != "" && string(c.Status) != status {
			continue
		}
		cp := *c
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := len(all)
	if offset >= len(all) {
		return []*model.Campaign{}, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (m *memCampaignRepo) ListRunning() ([]*model.Campaign, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	running := []*model.Campaign{}
	for _, c := range m.s.campaigns {
		if c.Status == model.CampaignRunning {
			cp := *c
			running = append(running, &cp)
		}
	}
	sort.Slice(running, func(i, j int) bool { return running[i].ID < running[j].ID })
	return running, nil
}

func (m *memCampaignRepo) UpdateStatus(campaignID int, to model.CampaignStatus) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c, ok := m.s.campaigns[campaignID]
	if !ok {
		return appErrors.NewCampaignNotFound(campaignID)
	}
	if !model.CampaignTransitionAllowed(c.Status, to) {
		return appErrors.NewInvalidTransition("campaign", string(c.Status), string(to))
	}
	if c.Status == to {
		return nil
	}
	c.Status = to
	now := time.Now()
	switch {
	case to == model.CampaignRunning:
		if c.StartedAt == nil {
			c.StartedAt = &now
		}
		c.LastProgressAt = &now
	case to.Terminal():
		c.FinishedAt = &now
	}
	return nil
}

func (m *memCampaignRepo) RefreshCounters(campaignID int) (*model.Campaign, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c, ok := m.s.campaigns[campaignID]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(campaignID)
	}
	c.SentCount, c.DeliveredCount, c.ReadCount, c.FailedCount = 0, 0, 0, 0
	for _, r := range m.s.recipients {
		if r.CampaignID != campaignID {
			continue
		}
		switch r.Status {
		case model.RecipientSent:
			c.SentCount++
		case model.RecipientDelivered:
			c.DeliveredCount++
		case model.RecipientRead:
			c.ReadCount++
		case model.RecipientFailed:
			c.FailedCount++
		}
	}
	cp := *c
	return &cp, nil
}

func (m *memCampaignRepo) TouchProgress(campaignID int) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if c, ok := m.s.campaigns[campaignID]; ok {
		now := time.Now()
		c.LastProgressAt = &now
	}
	return nil
}

var _ repository.CampaignRepositoryInterface = (*memCampaignRepo)(nil)

// ---------------- recipient repo ----------------

type memRecipientRepo struct {
	s *memStore
	// lastLease records the lease passed to the most recent ClaimQueued.
	lastLease time.Duration
	// failMarkSent makes the next MarkSent return this error once.
	failMarkSent error
}

func (m *memRecipientRepo) forCampaign(campaignID int) []*model.Recipient {
	recs := []*model.Recipient{}
	for _, r := range m.s.recipients {
		if r.CampaignID == campaignID {
			recs = append(recs, r)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
	return recs
}

func (m *memRecipientRepo) ClaimQueued(campaignID, n int, lease time.Duration, token string) ([]*model.Recipient, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.lastLease = lease
	claimed := []*model.Recipient{}
	now := time.Now()
	for _, r := range m.forCampaign(campaignID) {
		if len(claimed) == n {
			break
		}
		if r.Status != model.RecipientQueued {
			continue
		}
		if r.ClaimedAt != nil && now.Sub(*r.ClaimedAt) < lease {
			continue
		}
		at := now
		r.ClaimedAt = &at
		r.ClaimedBy = token
		cp := *r
		claimed = append(claimed, &cp)
	}
	return claimed, nil
}

func (m *memRecipientRepo) RefreshClaim(id int, token string) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	r, ok := m.s.recipients[id]
	if !ok || r.Status != model.RecipientQueued || r.ClaimedBy != token {
		return false, nil
	}
	now := time.Now()
	r.ClaimedAt = &now
	return true, nil
}

func (m *memRecipientRepo) ReleaseClaims(campaignID int, ids []int, token string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, id := range ids {
		if r, ok := m.s.recipients[id]; ok && r.CampaignID == campaignID &&
			r.Status == model.RecipientQueued && r.ClaimedBy == token {
			r.ClaimedAt = nil
			r.ClaimedBy = ""
		}
	}
	return nil
}

func (m *memRecipientRepo) EnsureIdempotencyKey(id int, key string) (string, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	r, ok := m.s.recipients[id]
	if !ok {
		return "", fmt.Errorf("recipient %d not found", id)
	}
	if r.IdempotencyKey == "" {
		r.IdempotencyKey = key
	}
	return r.IdempotencyKey, nil
}

func (m *memRecipientRepo) MarkSent(id int, providerMessageID string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.failMarkSent != nil {
		err := m.failMarkSent
		m.failMarkSent = nil
		return err
	}
	r, ok := m.s.recipients[id]
	if !ok || r.Status != model.RecipientQueued {
		return nil
	}
	now := time.Now()
	r.Status = model.RecipientSent
	r.ProviderMessageID = &providerMessageID
	r.SentAt = &now
	r.ClaimedAt = nil
	r.ClaimedBy = ""
	r.LastErrorCode, r.LastErrorMessage, r.LastErrorClass = "", "", ""
	return nil
}

func (m *memRecipientRepo) MarkFailed(id int, code, message string, class model.ErrorClass) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	r, ok := m.s.recipients[id]
	if !ok {
		return nil
	}
	if r.Status != model.RecipientQueued && r.Status != model.RecipientSent {
		return nil
	}
	r.Status = model.RecipientFailed
	r.LastErrorCode, r.LastErrorMessage, r.LastErrorClass = code, message, class
	r.AttemptCount++
	r.ClaimedAt = nil
	r.ClaimedBy = ""
	return nil
}

func (m *memRecipientRepo) MarkDelivered(id int, at time.Time) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	r, ok := m.s.recipients[id]
	if !ok || r.Status != model.RecipientSent {
		return false, nil
	}
	r.Status = model.RecipientDelivered
	r.DeliveredAt = &at
	return true, nil
}

func (m *memRecipientRepo) MarkRead(id int, at time.Time) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	r, ok := m.s.recipients[id]
	if !ok || (r.Status != model.RecipientSent && r.Status != model.RecipientDelivered) {
		return false, nil
	}
	r.Status = model.RecipientRead
	r.ReadAt = &at
	if r.DeliveredAt == nil {
		r.DeliveredAt = &at
	}
	return true, nil
}

func (m *memRecipientRepo) RequeueTransient(campaignID, maxAttempts int) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	n := 0
	for _, r := range m.forCampaign(campaignID) {
		if r.Status == model.RecipientFailed && r.LastErrorClass == model.ErrorTransient && r.AttemptCount < maxAttempts {
			r.Status = model.RecipientQueued
			r.ClaimedAt = nil
			r.ClaimedBy = ""
			n++
		}
	}
	return n, nil
}

func (m *memRecipientRepo) RetryFailed(campaignID int) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	n := 0
	for _, r := range m.forCampaign(campaignID) {
		if r.Status == model.RecipientFailed {
			r.Status = model.RecipientQueued
			r.LastErrorCode, r.LastErrorMessage, r.LastErrorClass = "", "", ""
			r.AttemptCount = 0
			r.ProviderMessageID = nil
			r.IdempotencyKey = ""
			r.ClaimedAt = nil
			r.ClaimedBy = ""
			n++
		}
	}
	return n, nil
}

func (m *memRecipientRepo) SkipQueued(campaignID int) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	n := 0
	for _, r := range m.forCampaign(campaignID) {
		if r.Status == model.RecipientQueued {
			r.Status = model.RecipientSkipped
			r.ClaimedAt = nil
			n++
		}
	}
	return n, nil
}

func (m *memRecipientRepo) FindByProviderMessageID(providerMessageID string) (*model.Recipient, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, r := range m.s.recipients {
		if r.ProviderMessageID != nil && *r.ProviderMessageID == providerMessageID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memRecipientRepo) List(campaignID int, status model.RecipientStatus, offset, limit int) ([]*model.Recipient, int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	matched := []*model.Recipient{}
	for _, r := range m.forCampaign(campaignID) {
		if status != "" && r.Status != status {
			continue
		}
		cp := *r
		matched = append(matched, &cp)
	}
	total := len(matched)
	if offset >= len(matched) {
		return []*model.Recipient{}, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (m *memRecipientRepo) CountByStatus(campaignID int) (map[model.RecipientStatus]int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	counts := map[model.RecipientStatus]int{
		model.RecipientQueued: 0, model.RecipientSent: 0, model.RecipientDelivered: 0,
		model.RecipientRead: 0, model.RecipientFailed: 0, model.RecipientSkipped: 0,
	}
	for _, r := range m.forCampaign(campaignID) {
		counts[r.Status]++
	}
	return counts, nil
}

func (m *memRecipientRepo) CountQueued(campaignID int) (int, error) {
	counts, _ := m.CountByStatus(campaignID)
	return counts[model.RecipientQueued], nil
}

func (m *memRecipientRepo) CountRetryable(campaignID, maxAttempts int) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	n := 0
	for _, r := range m.forCampaign(campaignID) {
		if r.Status == model.RecipientFailed && r.LastErrorClass == model.ErrorTransient && r.AttemptCount < maxAttempts {
			n++
		}
	}
	return n, nil
}

func (m *memRecipientRepo) TopErrorCodes(campaignID, limit int) (map[string]int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	codes := map[string]int{}
	for _, r := range m.forCampaign(campaignID) {
		if r.Status == model.RecipientFailed && r.LastErrorCode != "" {
			codes[r.LastErrorCode]++
		}
	}
	return codes, nil
}

var _ repository.RecipientRepositoryInterface = (*memRecipientRepo)(nil)

// ---------------- channel / contact / template repos ----------------

type memChannelRepo struct{ s *memStore }

func (m *memChannelRepo) GetByID(id int) (*model.Channel, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c, ok := m.s.channels[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *memChannelRepo) SetBlocked(id int, code, reason string, at time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if c, ok := m.s.channels[id]; ok {
		c.Blocked = true
		c.BlockedCode, c.BlockedReason = code, reason
		c.BlockedAt = &at
	}
	return nil
}

func (m *memChannelRepo) ClearBlocked(id int) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if c, ok := m.s.channels[id]; ok {
		c.Blocked = false
		c.BlockedCode, c.BlockedReason = "", ""
		c.BlockedAt = nil
	}
	return nil
}

var _ repository.ChannelRepositoryInterface = (*memChannelRepo)(nil)

type memContactRepo struct{ s *memStore }

func (m *memContactRepo) GetByID(id int) (*model.Contact, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c, ok := m.s.contacts[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *memContactRepo) UpdateLastInboundByPhone(phone string, at time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, c := range m.s.contacts {
		if c.Phone == phone {
			if c.LastInboundAt == nil || c.LastInboundAt.Before(at) {
				t := at
				c.LastInboundAt = &t
			}
		}
	}
	return nil
}

var _ repository.ContactRepositoryInterface = (*memContactRepo)(nil)

type memTemplateRepo struct{ s *memStore }

func (m *memTemplateRepo) GetByID(id int) (*model.Template, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	t, ok := m.s.templates[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *memTemplateRepo) UpdateStatus(id int, status model.TemplateStatus) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if t, ok := m.s.templates[id]; ok {
		t.Status = status
	}
	return nil
}

var _ repository.TemplateRepositoryInterface = (*memTemplateRepo)(nil)

// ---------------- webhook event repo ----------------

type memWebhookRepo struct{ s *memStore }

func (m *memWebhookRepo) Insert(ev *model.WebhookEvent) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if ev.ProviderMessageID != nil {
		key := fmt.Sprintf("%s|%s|%s", *ev.ProviderMessageID, ev.EventType, ev.ReportedStatus)
		if m.s.eventKeys[key] {
			return false, nil
		}
		m.s.eventKeys[key] = true
	}
	ev.ID = m.s.id()
	ev.ReceivedAt = time.Now()
	cp := *ev
	m.s.events[ev.ID] = &cp
	return true, nil
}

func (m *memWebhookRepo) GetByID(id int) (*model.WebhookEvent, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	ev, ok := m.s.events[id]
	if !ok {
		return nil, nil
	}
	cp := *ev
	return &cp, nil
}

func (m *memWebhookRepo) MarkProcessed(id int, orphan bool) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if ev, ok := m.s.events[id]; ok {
		ev.Processed = true
		ev.Orphan = orphan
		ev.ProcessingError = ""
	}
	return nil
}

func (m *memWebhookRepo) MarkError(id int, message string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if ev, ok := m.s.events[id]; ok {
		ev.Processed = true
		ev.ProcessingError = message
	}
	return nil
}

func (m *memWebhookRepo) LastReceivedAt(channelID int) (*time.Time, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var last *time.Time
	for _, ev := range m.s.events {
		if ev.ChannelID != channelID {
			continue
		}
		t := ev.ReceivedAt
		if last == nil || t.After(*last) {
			last = &t
		}
	}
	return last, nil
}

func (m *memWebhookRepo) OrphanCount(channelID int) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	n := 0
	for _, ev := range m.s.events {
		if ev.ChannelID == channelID && ev.Orphan {
			n++
		}
	}
	return n, nil
}

var _ repository.WebhookEventRepositoryInterface = (*memWebhookRepo)(nil)

// ---------------- provider / queue fakes ----------------

type fakeSender struct {
	mu    sync.Mutex
	calls int
	// keys records the idempotency key of each call, in order.
	keys []string
	// errFor maps a destination phone to the error every send to it returns.
	errFor map[string]error
	// errOnce fails the nth call (1-based) with the given error.
	errOnCall map[int]error
	// onSend runs after a successful send is recorded, outside f.mu.
	onSend func(req provider.SendRequest)
}

func (f *fakeSender) Send(_ context.Context, req provider.SendRequest) (*provider.SendResult, error) {
	f.mu.Lock()
	f.calls++
	calls := f.calls
	f.keys = append(f.keys, req.IdempotencyKey)
	errOnCall := f.errOnCall[calls]
	errFor := f.errFor[req.To]
	hook := f.onSend
	f.mu.Unlock()

	if errOnCall != nil {
		return nil, errOnCall
	}
	if errFor != nil {
		return nil, errFor
	}
	if hook != nil {
		hook(req)
	}
	return &provider.SendResult{ProviderMessageID: fmt.Sprintf("wamid.%s.%d", req.To, calls)}, nil
}

// sentKeys returns a copy of the recorded idempotency keys, in call order.
func (f *fakeSender) sentKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.keys))
	copy(out, f.keys)
	return out
}

type fakeValidator struct {
	status string
	err    error
}

func (f *fakeValidator) Revalidate(_ context.Context, _, _ string, cachedStatus string) (*provider.Revalidation, error) {
	if f.err != nil {
		return nil, f.err
	}
	status := f.status
	if status == "" {
		status = "approved"
	}
	return &provider.Revalidation{
		Status:   status,
		CanUse:   status == "approved",
		Mismatch: status != cachedStatus,
	}, nil
}

type fakeQueue struct {
	mu        sync.Mutex
	published map[string][]int
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{published: map[string][]int{}}
}

func (q *fakeQueue) Publish(topic string, id int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published[topic] = append(q.published[topic], id)
	return nil
}

func (q *fakeQueue) Subscribe(string, func(int) error) error { return nil }

func (q *fakeQueue) count(topic string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.published[topic])
}

// ---------------- fixture ----------------

type fixture struct {
	store      *memStore
	campaigns  *memCampaignRepo
	recipients *memRecipientRepo
	channels   *memChannelRepo
	contacts   *memContactRepo
	templates  *memTemplateRepo
	webhooks   *memWebhookRepo
	sender     *fakeSender
	queue      *fakeQueue
	quota      *quota.Tracker
	dispatcher *service.Dispatcher
	campaignSv *service.CampaignService
	reconciler *service.Reconciler
}

func newFixture() *fixture {
	store := newMemStore()
	f := &fixture{
		store:      store,
		campaigns:  &memCampaignRepo{s: store},
		recipients: &memRecipientRepo{s: store},
		channels:   &memChannelRepo{s: store},
		contacts:   &memContactRepo{s: store},
		templates:  &memTemplateRepo{s: store},
		webhooks:   &memWebhookRepo{s: store},
		sender:     &fakeSender{errFor: map[string]error{}, errOnCall: map[int]error{}},
		queue:      newFakeQueue(),
		quota:      quota.NewTracker(quota.NewMemoryCounter()),
	}
	log := zap.NewNop()
	f.dispatcher = &service.Dispatcher{
		CampaignRepo:   f.campaigns,
		RecipientRepo:  f.recipients,
		ChannelRepo:    f.channels,
		ContactRepo:    f.contacts,
		TemplateRepo:   f.templates,
		Sender:         f.sender,
		Quota:          f.quota,
		Queue:          f.queue,
		Log:            log,
		BatchSize:      50,
		MaxAutoRetries: 3,
		ClaimLease:     time.Minute,
		NewLimiter:     func(model.Speed) *rate.Limiter { return rate.NewLimiter(rate.Inf, 1) },
	}
	f.campaignSv = &service.CampaignService{
		CampaignRepo:  f.campaigns,
		RecipientRepo: f.recipients,
		ChannelRepo:   f.channels,
		Templates:     &service.TemplateService{TemplateRepo: f.templates, Validator: &fakeValidator{}},
		Queue:         f.queue,
		Log:           log,
	}
	f.reconciler = &service.Reconciler{
		WebhookRepo:   f.webhooks,
		RecipientRepo: f.recipients,
		CampaignRepo:  f.campaigns,
		ChannelRepo:   f.channels,
		ContactRepo:   f.contacts,
		Log:           log,
	}
	return f
}

// seedCampaign creates a connected channel, an approved template, n contacts
// and a campaign with one recipient per contact.
func (f *fixture) seedCampaign(n int, limit *int) *model.Campaign {
	channel := &model.Channel{ID: f.store.id(), Name: "main", PhoneNumber: "+15550000000", Connected: true, DailyLimit: limit}
	f.store.channels[channel.ID] = channel

	tmpl := &model.Template{ID: f.store.id(), ChannelID: channel.ID, Name: "promo_aug", Language: "en", Body: "Hi {first_name}!", Status: model.TemplateApproved}
	f.store.templates[tmpl.ID] = tmpl

	contactIDs := make([]int, 0, n)
	for i := 0; i < n; i++ {
		c := &model.Contact{ID: f.store.id(), Phone: fmt.Sprintf("+2547%08d", i), FirstName: fmt.Sprintf("C%d", i)}
		f.store.contacts[c.ID] = c
		contactIDs = append(contactIDs, c.ID)
	}

	campaign := &model.Campaign{Name: "august blast", ChannelID: channel.ID, TemplateID: tmpl.ID}
	if err := f.campaigns.CreateWithRecipients(campaign, contactIDs); err != nil {
		panic(err)
	}
	return campaign
}

func (f *fixture) setRunning(campaignID int) {
	if err := f.campaigns.UpdateStatus(campaignID, model.CampaignRunning); err != nil {
		panic(err)
	}
}

func (f *fixture) statusCounts(campaignID int) map[model.RecipientStatus]int {
	counts, _ := f.recipients.CountByStatus(campaignID)
	return counts
}
