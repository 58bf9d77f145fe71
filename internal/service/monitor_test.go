package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/anthropics/feishu-topic-monitor/internal/biz/domain"
	"github.com/anthropics/feishu-topic-monitor/internal/biz/repo"
	"github.com/anthropics/feishu-topic-monitor/internal/biz/usecase"
	"github.com/anthropics/feishu-topic-monitor/internal/conf"
)

// Mock implementations

type mockWorkspace struct {
	mu sync.Mutex

	users     []domain.UserProfile
	channels  []domain.Channel
	chanTypes map[string]domain.ChannelType // GetChannel resolution; absent means unresolvable
	messages  map[string][]domain.Message
	directErr error
	fetchErr  map[string]error
	listErr   error // consumed by the next ListChannels call
	postErr   error

	posts        []string
	listGate     chan struct{} // when set, ListChannels blocks until closed
	listEntered  chan struct{}
	fetchedLimit int
}

func (m *mockWorkspace) ListChannels(ctx context.Context) ([]domain.Channel, error) {
	if m.listGate != nil {
		m.listEntered <- struct{}{}
		<-m.listGate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		err := m.listErr
		m.listErr = nil
		return nil, err
	}
	return m.channels, nil
}

func (m *mockWorkspace) GetChannel(ctx context.Context, channelID string) (*domain.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	resolved, ok := m.chanTypes[channelID]
	if !ok {
		return nil, errors.New("chat info unavailable")
	}
	for _, c := range m.channels {
		if c.ID == channelID {
			c.Type = resolved
			return &c, nil
		}
	}
	return nil, errors.New("channel not found")
}

func (m *mockWorkspace) ListMessages(ctx context.Context, channelID string, limit int) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fetchErr[channelID]; err != nil {
		return nil, err
	}
	m.fetchedLimit = limit
	msgs := m.messages[channelID]
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (m *mockWorkspace) GetUserProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	for i := range m.users {
		if m.users[i].UserID == userID {
			return &m.users[i], nil
		}
	}
	return nil, errors.New("user not found")
}

func (m *mockWorkspace) ListUsers(ctx context.Context) ([]domain.UserProfile, error) {
	return m.users, nil
}

func (m *mockWorkspace) CreateDirectChannel(ctx context.Context, userID string) (*domain.Channel, error) {
	if m.directErr != nil {
		return nil, m.directErr
	}
	return &domain.Channel{ID: "p2p_" + userID, Type: domain.ChannelTypeP2P}, nil
}

func (m *mockWorkspace) PostMessage(ctx context.Context, channelID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.postErr != nil {
		return m.postErr
	}
	m.posts = append(m.posts, text)
	return nil
}

func (m *mockWorkspace) postCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.posts)
}

// mockStateRepo keeps the persisted snapshot in memory, deep-copied on save
// so it behaves like a real file record
type mockStateRepo struct {
	saved   *domain.MonitorState
	saveErr error
	saves   int
}

func (m *mockStateRepo) Load() (*domain.MonitorState, bool) {
	if m.saved == nil {
		return domain.NewMonitorState(), false
	}
	return copyState(m.saved), true
}

func (m *mockStateRepo) Save(state *domain.MonitorState) error {
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = copyState(state)
	return nil
}

func copyState(s *domain.MonitorState) *domain.MonitorState {
	out := domain.NewMonitorState()
	out.LastRun = s.LastRun
	for ch, ids := range s.ProcessedIDs {
		for id := range ids {
			out.MarkProcessed(ch, id)
		}
	}
	return out
}

func testMonitorConfig() *conf.MonitorConfig {
	return &conf.MonitorConfig{
		Schedule:        "*/5 * * * *",
		Topics:          []string{"table tennis"},
		Channels:        []string{"general"},
		FetchLimit:      20,
		FirstRun:        conf.FirstRunConfig{Enabled: true, Limit: 10},
		FallbackChannel: "general",
	}
}

func newTestMonitor(ws *mockWorkspace, stateRepo repo.StateRepo, cfg *conf.MonitorConfig) *MonitorService {
	classifier := usecase.NewClassifierUsecase(ws, nil, usecase.ClassifierParams{
		Topics:          cfg.Topics,
		FetchLimit:      cfg.FetchLimit,
		FirstRunEnabled: cfg.FirstRun.Enabled,
		FirstRunLimit:   cfg.FirstRun.Limit,
	}, zerolog.Nop())
	return NewMonitorService(ws, classifier, stateRepo, nil, cfg, zerolog.Nop())
}

func adminUser() domain.UserProfile {
	return domain.UserProfile{UserID: "ou_admin", DisplayName: "Alice", Roles: []string{"admin"}}
}

func plainUser(id string) domain.UserProfile {
	return domain.UserProfile{UserID: id, DisplayName: "User " + id}
}

func botUser(id string) domain.UserProfile {
	return domain.UserProfile{UserID: id, DisplayName: "Bot " + id, IsBot: true}
}

func TestResolveRecipientPrefersAdmin(t *testing.T) {
	ws := &mockWorkspace{users: []domain.UserProfile{botUser("b1"), plainUser("u1"), adminUser()}}
	s := newTestMonitor(ws, &mockStateRepo{}, testMonitorConfig())

	got, err := s.resolveRecipient(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.UserID != "ou_admin" {
		t.Errorf("expected the admin, got %s", got.UserID)
	}
}

func TestResolveRecipientPrefersNonBot(t *testing.T) {
	ws := &mockWorkspace{users: []domain.UserProfile{botUser("b1"), plainUser("u1")}}
	s := newTestMonitor(ws, &mockStateRepo{}, testMonitorConfig())

	got, err := s.resolveRecipient(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.UserID != "u1" {
		t.Errorf("expected the non-bot user, got %s", got.UserID)
	}
}

func TestResolveRecipientFallsBackToFirst(t *testing.T) {
	ws := &mockWorkspace{users: []domain.UserProfile{botUser("b1"), botUser("b2")}}
	s := newTestMonitor(ws, &mockStateRepo{}, testMonitorConfig())

	got, err := s.resolveRecipient(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.UserID != "b1" {
		t.Errorf("expected the first user, got %s", got.UserID)
	}
}

func TestResolveRecipientNoUsersIsFatal(t *testing.T) {
	ws := &mockWorkspace{}
	s := newTestMonitor(ws, &mockStateRepo{}, testMonitorConfig())

	if _, err := s.resolveRecipient(context.Background()); err == nil {
		t.Fatal("expected an error with no users available")
	}
}

func TestResolveDeliveryChannelFallbacks(t *testing.T) {
	recipient := adminUser()

	// Direct channel works.
	ws := &mockWorkspace{}
	s := newTestMonitor(ws, &mockStateRepo{}, testMonitorConfig())
	id, err := s.resolveDeliveryChannel(context.Background(), &recipient)
	if err != nil || id != "p2p_ou_admin" {
		t.Errorf("expected the direct channel, got %q (%v)", id, err)
	}

	// Direct channel fails -> well-known public channel by name.
	ws = &mockWorkspace{
		directErr: errors.New("p2p forbidden"),
		channels: []domain.Channel{
			{ID: "ch_r", Name: "random", Type: domain.ChannelTypeGroup},
			{ID: "ch_g", Name: "general", Type: domain.ChannelTypeGroup},
		},
	}
	s = newTestMonitor(ws, &mockStateRepo{}, testMonitorConfig())
	id, err = s.resolveDeliveryChannel(context.Background(), &recipient)
	if err != nil || id != "ch_g" {
		t.Errorf("expected the configured public channel, got %q (%v)", id, err)
	}

	// No well-known name -> any public channel.
	ws = &mockWorkspace{
		directErr: errors.New("p2p forbidden"),
		channels:  []domain.Channel{{ID: "ch_r", Name: "random", Type: domain.ChannelTypeGroup}},
	}
	s = newTestMonitor(ws, &mockStateRepo{}, testMonitorConfig())
	id, err = s.resolveDeliveryChannel(context.Background(), &recipient)
	if err != nil || id != "ch_r" {
		t.Errorf("expected any public channel, got %q (%v)", id, err)
	}

	// Only a p2p channel left -> any channel.
	ws = &mockWorkspace{
		directErr: errors.New("p2p forbidden"),
		channels:  []domain.Channel{{ID: "ch_p", Name: "", Type: domain.ChannelTypeP2P}},
	}
	s = newTestMonitor(ws, &mockStateRepo{}, testMonitorConfig())
	id, err = s.resolveDeliveryChannel(context.Background(), &recipient)
	if err != nil || id != "ch_p" {
		t.Errorf("expected any channel, got %q (%v)", id, err)
	}

	// Nothing available -> fatal.
	ws = &mockWorkspace{directErr: errors.New("p2p forbidden")}
	s = newTestMonitor(ws, &mockStateRepo{}, testMonitorConfig())
	if _, err := s.resolveDeliveryChannel(context.Background(), &recipient); err == nil {
		t.Fatal("expected an error with no channel available")
	}
}

func TestStartRejectsInvalidScheduleExpression(t *testing.T) {
	ws := &mockWorkspace{users: []domain.UserProfile{adminUser()}}
	cfg := testMonitorConfig()
	cfg.Schedule = "every five minutes"
	s := newTestMonitor(ws, &mockStateRepo{}, cfg)

	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected startup to fail on an invalid schedule")
	}
	if s.GetStatus().Started {
		t.Error("monitor must not report started after a failed start")
	}
	s.mu.Lock()
	target := s.target
	s.mu.Unlock()
	if target != nil {
		t.Error("a failed start must not leave a notification target behind")
	}
}

func TestResolveDeliveryChannelResolvesUnknownTypes(t *testing.T) {
	recipient := adminUser()

	// Listings carry no channel type; a direct chat must never win the
	// public-channel pass just because its type was unresolved.
	ws := &mockWorkspace{
		directErr: errors.New("p2p forbidden"),
		channels: []domain.Channel{
			{ID: "ch_dm", Name: ""},
			{ID: "ch_g", Name: "offtopic"},
		},
		chanTypes: map[string]domain.ChannelType{
			"ch_dm": domain.ChannelTypeP2P,
			"ch_g":  domain.ChannelTypeGroup,
		},
	}
	s := newTestMonitor(ws, &mockStateRepo{}, testMonitorConfig())
	id, err := s.resolveDeliveryChannel(context.Background(), &recipient)
	if err != nil || id != "ch_g" {
		t.Errorf("expected the resolved group channel, got %q (%v)", id, err)
	}

	// A channel whose type cannot be resolved is only a last resort.
	ws = &mockWorkspace{
		directErr: errors.New("p2p forbidden"),
		channels:  []domain.Channel{{ID: "ch_x", Name: "mystery"}},
	}
	s = newTestMonitor(ws, &mockStateRepo{}, testMonitorConfig())
	id, err = s.resolveDeliveryChannel(context.Background(), &recipient)
	if err != nil || id != "ch_x" {
		t.Errorf("expected the unresolved channel as a last resort, got %q (%v)", id, err)
	}
}

func TestScheduledTickDeliversAlert(t *testing.T) {
	ws := &mockWorkspace{
		users:    []domain.UserProfile{adminUser()},
		channels: []domain.Channel{{ID: "ch_g", Name: "general", Type: domain.ChannelTypeGroup}},
		messages: map[string][]domain.Message{
			"ch_g": {{ID: "om_1", ChannelID: "ch_g", Content: "table tennis", SenderID: "u1", CreateTime: time.Now()}},
		},
	}
	cfg := testMonitorConfig()
	cfg.Schedule = "@every 1s"
	s := newTestMonitor(ws, &mockStateRepo{}, cfg)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Stop()

	// The first armed tick must already see a resolved notification target.
	deadline := time.After(3 * time.Second)
	for ws.postCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("no alert delivered by the scheduled tick")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestFirstRunLimitSurvivesAbortedCycle(t *testing.T) {
	ws := &mockWorkspace{
		users:    []domain.UserProfile{adminUser()},
		channels: []domain.Channel{{ID: "ch_g", Name: "general", Type: domain.ChannelTypeGroup}},
		messages: map[string][]domain.Message{},
		listErr:  errors.New("api unavailable"),
	}
	cfg := testMonitorConfig()
	s := newTestMonitor(ws, &mockStateRepo{}, cfg)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Stop()

	// First cycle aborts before reaching any channel; the one after it must
	// still fetch under the first-run limit.
	if err := s.RunNow(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.RunNow(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ws.fetchedLimit != cfg.FirstRun.Limit {
		t.Errorf("expected fetch limit %d after an aborted first cycle, got %d",
			cfg.FirstRun.Limit, ws.fetchedLimit)
	}

	// Once a cycle completed, the steady-state limit applies.
	if err := s.RunNow(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ws.fetchedLimit != cfg.FetchLimit {
		t.Errorf("expected steady-state fetch limit %d, got %d", cfg.FetchLimit, ws.fetchedLimit)
	}
}

func TestCycleDeliversAlertForMatches(t *testing.T) {
	ws := &mockWorkspace{
		users:    []domain.UserProfile{adminUser()},
		channels: []domain.Channel{{ID: "ch_g", Name: "general", Type: domain.ChannelTypeGroup}},
		messages: map[string][]domain.Message{
			"ch_g": {{ID: "om_1", ChannelID: "ch_g", Content: "table tennis at 6?", SenderID: "u1", CreateTime: time.Now()}},
		},
	}
	stateRepo := &mockStateRepo{}
	s := newTestMonitor(ws, stateRepo, testMonitorConfig())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Stop()

	if err := s.RunNow(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := ws.postCount(); got != 1 {
		t.Fatalf("expected exactly one alert, got %d", got)
	}
	if stateRepo.saved == nil || !stateRepo.saved.IsProcessed("ch_g", "om_1") {
		t.Error("expected the processed marking to be persisted")
	}
	stats := s.GetStatus().LastCycle
	if stats == nil || stats.Matches != 1 {
		t.Errorf("expected cycle stats with one match, got %+v", stats)
	}
}

func TestCycleIsolatesFailingChannel(t *testing.T) {
	cfg := testMonitorConfig()
	cfg.Channels = []string{"broken", "general"}
	ws := &mockWorkspace{
		users: []domain.UserProfile{adminUser()},
		channels: []domain.Channel{
			{ID: "ch_b", Name: "broken", Type: domain.ChannelTypeGroup},
			{ID: "ch_g", Name: "general", Type: domain.ChannelTypeGroup},
		},
		fetchErr: map[string]error{"ch_b": errors.New("fetch failed")},
		messages: map[string][]domain.Message{
			"ch_g": {{ID: "om_1", ChannelID: "ch_g", Content: "ping pong table tennis", SenderID: "u1", CreateTime: time.Now()}},
		},
	}
	s := newTestMonitor(ws, &mockStateRepo{}, cfg)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Stop()

	if err := s.RunNow(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := ws.postCount(); got != 1 {
		t.Errorf("the healthy channel must still be processed, got %d alerts", got)
	}
	stats := s.GetStatus().LastCycle
	if stats == nil || stats.Errors != 1 {
		t.Errorf("expected one channel error in cycle stats, got %+v", stats)
	}
}

func TestManualTriggerCoalescedDuringCycle(t *testing.T) {
	ws := &mockWorkspace{
		users:       []domain.UserProfile{adminUser()},
		channels:    []domain.Channel{{ID: "ch_g", Name: "general", Type: domain.ChannelTypeGroup}},
		messages:    map[string][]domain.Message{},
		listGate:    make(chan struct{}),
		listEntered: make(chan struct{}, 1),
	}
	stateRepo := &mockStateRepo{}
	s := newTestMonitor(ws, stateRepo, testMonitorConfig())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Stop()

	done := make(chan error, 1)
	go func() { done <- s.RunNow() }()
	<-ws.listEntered

	if !s.IsRunning() {
		t.Error("expected IsRunning while a cycle is in flight")
	}
	if err := s.RunNow(); !errors.Is(err, ErrCycleInFlight) {
		t.Errorf("expected ErrCycleInFlight, got %v", err)
	}
	if stateRepo.saves != 0 {
		t.Error("the coalesced trigger must not touch state")
	}

	close(ws.listGate)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error from the first trigger: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cycle did not finish")
	}
	if s.IsRunning() {
		t.Error("IsRunning must clear after the cycle")
	}
}

func TestDeliveryFailureDoesNotRevertProcessedMarks(t *testing.T) {
	ws := &mockWorkspace{
		users:    []domain.UserProfile{adminUser()},
		channels: []domain.Channel{{ID: "ch_g", Name: "general", Type: domain.ChannelTypeGroup}},
		messages: map[string][]domain.Message{
			"ch_g": {{ID: "om_1", ChannelID: "ch_g", Content: "table tennis", SenderID: "u1", CreateTime: time.Now()}},
		},
		postErr: errors.New("send failed"),
	}
	stateRepo := &mockStateRepo{}
	s := newTestMonitor(ws, stateRepo, testMonitorConfig())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Stop()

	if err := s.RunNow(); err != nil {
		t.Fatalf("a delivery failure must not fail the cycle: %v", err)
	}
	if stateRepo.saved == nil || !stateRepo.saved.IsProcessed("ch_g", "om_1") {
		t.Error("processed marks must survive a delivery failure")
	}
}

func TestCrashRecoveryBound(t *testing.T) {
	messages := map[string][]domain.Message{
		"ch_g": {{ID: "om_1", ChannelID: "ch_g", Content: "table tennis", SenderID: "u1", CreateTime: time.Now()}},
	}
	channels := []domain.Channel{{ID: "ch_g", Name: "general", Type: domain.ChannelTypeGroup}}
	stateRepo := &mockStateRepo{saveErr: errors.New("disk full")}

	// First process lifetime: cycle runs, persistence fails.
	ws := &mockWorkspace{users: []domain.UserProfile{adminUser()}, channels: channels, messages: messages}
	s := newTestMonitor(ws, stateRepo, testMonitorConfig())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.RunNow(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.Stop()
	if got := ws.postCount(); got != 1 {
		t.Fatalf("expected one alert in the first lifetime, got %d", got)
	}

	// Restart: the lost save means the same message is re-evaluated once.
	stateRepo.saveErr = nil
	ws2 := &mockWorkspace{users: []domain.UserProfile{adminUser()}, channels: channels, messages: messages}
	s2 := newTestMonitor(ws2, stateRepo, testMonitorConfig())
	if err := s2.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s2.RunNow(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s2.Stop()
	if got := ws2.postCount(); got != 1 {
		t.Fatalf("expected one re-evaluation after restart, got %d", got)
	}

	// Second restart: the save succeeded, no further re-evaluation.
	ws3 := &mockWorkspace{users: []domain.UserProfile{adminUser()}, channels: channels, messages: messages}
	s3 := newTestMonitor(ws3, stateRepo, testMonitorConfig())
	if err := s3.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s3.RunNow(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s3.Stop()
	if got := ws3.postCount(); got != 0 {
		t.Errorf("expected no re-evaluation once state persisted, got %d alerts", got)
	}
}
