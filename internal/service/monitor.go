package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/anthropics/feishu-topic-monitor/internal/biz/domain"
	"github.com/anthropics/feishu-topic-monitor/internal/biz/repo"
	"github.com/anthropics/feishu-topic-monitor/internal/biz/usecase"
	"github.com/anthropics/feishu-topic-monitor/internal/conf"
)

// ErrNotStarted is returned by operations that need a started monitor
var ErrNotStarted = errors.New("monitor not started")

// ChannelOutcome is the explicit per-channel result of one cycle, so one
// failing channel never aborts the batch
type ChannelOutcome struct {
	Channel string
	Result  *domain.ClassificationResult
	Err     error
}

// CycleStats summarizes the most recent completed cycle
type CycleStats struct {
	StartedAt time.Time
	Duration  time.Duration
	Channels  int
	Matches   int
	Errors    int
}

// Status is the monitor status snapshot exposed to the control surface
type Status struct {
	Started      bool
	InFlight     bool
	Schedule     string
	SkippedTicks int64
	FirstRunDone bool
	LastCycle    *CycleStats
}

// MonitorService owns the scheduler, state store, classifier and delivery.
// It resolves the notification target once at startup and drives one
// end-to-end cycle per tick.
type MonitorService struct {
	workspace  repo.WorkspaceRepo
	classifier *usecase.ClassifierUsecase
	stateRepo  repo.StateRepo
	history    repo.HistoryRepo
	cfg        *conf.MonitorConfig
	log        zerolog.Logger

	scheduler *Scheduler

	mu        sync.Mutex
	started   bool
	target    *domain.NotificationTarget
	state     *domain.MonitorState
	firstRun  bool
	lastCycle *CycleStats
}

// NewMonitorService creates the monitor. State is read once here; whether a
// prior record existed decides first-run status.
func NewMonitorService(
	workspace repo.WorkspaceRepo,
	classifier *usecase.ClassifierUsecase,
	stateRepo repo.StateRepo,
	history repo.HistoryRepo,
	cfg *conf.MonitorConfig,
	log zerolog.Logger,
) *MonitorService {
	state, existed := stateRepo.Load()
	s := &MonitorService{
		workspace:  workspace,
		classifier: classifier,
		stateRepo:  stateRepo,
		history:    history,
		cfg:        cfg,
		log:        log.With().Str("component", "monitor").Logger(),
		state:      state,
		firstRun:   !existed,
	}
	s.scheduler = NewScheduler(cfg.Schedule, s.runCycle, log)
	return s
}

// Start resolves the notification target and arms the scheduler.
// Idempotent; any resolution failure is fatal to startup.
func (s *MonitorService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	recipient, err := s.resolveRecipient(ctx)
	if err != nil {
		return err
	}

	deliveryID, err := s.resolveDeliveryChannel(ctx, recipient)
	if err != nil {
		return err
	}

	// The target must be in place before the scheduler is armed; a tick can
	// land as soon as Start returns.
	s.mu.Lock()
	s.target = &domain.NotificationTarget{
		Recipient:         *recipient,
		DeliveryChannelID: deliveryID,
	}
	s.started = true
	s.mu.Unlock()

	if err := s.scheduler.Start(); err != nil {
		s.mu.Lock()
		s.target = nil
		s.started = false
		s.mu.Unlock()
		return err
	}

	s.log.Info().
		Str("recipient", recipient.UserID).
		Str("delivery_channel", deliveryID).
		Str("schedule", s.cfg.Schedule).
		Msg("monitor started")
	return nil
}

// Stop disarms the scheduler
func (s *MonitorService) Stop() {
	s.mu.Lock()
	s.started = false
	s.mu.Unlock()
	s.scheduler.Stop()
}

// RunNow triggers one out-of-band cycle, coalesced into a no-op when a
// cycle is already in flight
func (s *MonitorService) RunNow() error {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return ErrNotStarted
	}
	return s.scheduler.RunNow()
}

// IsRunning reports whether a cycle is currently in flight
func (s *MonitorService) IsRunning() bool {
	return s.scheduler.InFlight()
}

// GetStatus returns a status snapshot for the control surface
func (s *MonitorService) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Started:      s.started,
		InFlight:     s.scheduler.InFlight(),
		Schedule:     s.scheduler.Schedule(),
		SkippedTicks: s.scheduler.SkippedTicks(),
		FirstRunDone: !s.firstRun,
		LastCycle:    s.lastCycle,
	}
}

// RecentAlerts returns the latest delivery attempts from the history store
func (s *MonitorService) RecentAlerts(ctx context.Context, limit int) ([]*repo.AlertRecord, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.Recent(ctx, limit)
}

// resolveRecipient picks the alert recipient: an administrative user if one
// exists, else any non-bot user, else the first available user
func (s *MonitorService) resolveRecipient(ctx context.Context) (*domain.UserProfile, error) {
	users, err := s.workspace.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	if len(users) == 0 {
		return nil, &conf.ConfigError{Field: "recipient", Message: "no users available in workspace"}
	}

	for i := range users {
		if users[i].IsAdmin() {
			return &users[i], nil
		}
	}
	for i := range users {
		if !users[i].IsBot {
			return &users[i], nil
		}
	}
	return &users[0], nil
}

// resolveDeliveryChannel resolves or creates the delivery channel: a direct
// channel with the recipient, else the configured well-known public channel,
// else any public channel, else any channel
func (s *MonitorService) resolveDeliveryChannel(ctx context.Context, recipient *domain.UserProfile) (string, error) {
	direct, err := s.workspace.CreateDirectChannel(ctx, recipient.UserID)
	if err == nil {
		return direct.ID, nil
	}
	s.log.Warn().Err(err).Msg("direct channel unavailable, falling back to public channel")

	channels, err := s.workspace.ListChannels(ctx)
	if err != nil {
		return "", fmt.Errorf("list channels: %w", err)
	}

	// The listing carries no channel types; resolve each candidate so a
	// direct chat is never mistaken for a public channel. A channel whose
	// type cannot be resolved stays unknown and is only a last resort.
	for i := range channels {
		if channels[i].Type != domain.ChannelTypeUnknown {
			continue
		}
		full, err := s.workspace.GetChannel(ctx, channels[i].ID)
		if err != nil {
			s.log.Warn().Err(err).Str("channel", channels[i].ID).Msg("channel type unresolved")
			continue
		}
		channels[i].Type = full.Type
	}

	for _, c := range channels {
		if c.Name == s.cfg.FallbackChannel && c.IsPublic() {
			return c.ID, nil
		}
	}
	for _, c := range channels {
		if c.IsPublic() {
			return c.ID, nil
		}
	}
	if len(channels) > 0 {
		return channels[0].ID, nil
	}
	return "", &conf.ConfigError{Field: "delivery_channel", Message: "no channel available for delivery"}
}

// runCycle is the scheduler callback: one end-to-end pass over every
// configured channel. No failure escapes this boundary.
func (s *MonitorService) runCycle() {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("cycle panicked")
		}
	}()

	ctx := context.Background()
	start := time.Now()

	s.mu.Lock()
	firstRun := s.firstRun
	target := s.target
	state := s.state
	s.mu.Unlock()

	s.log.Info().Bool("first_run", firstRun).Msg("cycle started")

	channels, err := s.workspace.ListChannels(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("cannot list channels, cycle aborted")
		s.finishCycle(start, len(s.cfg.Channels), 0, len(s.cfg.Channels))
		return
	}

	outcomes := make([]ChannelOutcome, 0, len(s.cfg.Channels))
	for _, name := range s.cfg.Channels {
		result, err := s.classifier.ClassifyChannel(ctx, channels, name, state, firstRun)
		if err != nil {
			// Contained: remaining channels still get processed.
			s.log.Error().Err(err).Str("channel", name).Msg("channel failed")
		}
		outcomes = append(outcomes, ChannelOutcome{Channel: name, Result: result, Err: err})
	}

	// First-run limits stay in force until a cycle actually got to the
	// classification stage; an aborted cycle must not consume them.
	s.mu.Lock()
	s.firstRun = false
	s.mu.Unlock()

	matches := 0
	errs := 0
	for _, o := range outcomes {
		if o.Err != nil {
			errs++
			continue
		}
		if o.Result == nil {
			continue
		}
		matches += o.Result.MatchCount()
		s.deliver(ctx, target, o.Result)
	}

	// Best-effort persistence: a failed save means at most one
	// re-evaluation of this cycle's messages after a restart.
	if err := s.stateRepo.Save(state); err != nil {
		s.log.Error().Err(err).Msg("state save failed")
	}

	s.finishCycle(start, len(outcomes), matches, errs)
}

// deliver posts exactly one alert for a channel with matches and records
// the attempt. Failure is logged and never reverts processed markings.
func (s *MonitorService) deliver(ctx context.Context, target *domain.NotificationTarget, result *domain.ClassificationResult) {
	text := usecase.ComposeAlert(target, result)
	err := s.workspace.PostMessage(ctx, target.DeliveryChannelID, text)
	if err != nil {
		s.log.Error().Err(err).Str("channel", result.ChannelName).Msg("alert delivery failed")
	}

	if s.history != nil {
		rec := &repo.AlertRecord{
			ChannelID:   result.ChannelID,
			ChannelName: result.ChannelName,
			Topics:      result.MatchedTopics,
			MatchCount:  result.MatchCount(),
			DeliveredAt: time.Now(),
			OK:          err == nil,
		}
		if err != nil {
			rec.Error = err.Error()
		}
		if herr := s.history.Record(ctx, rec); herr != nil {
			s.log.Warn().Err(herr).Msg("alert history write failed")
		}
	}
}

func (s *MonitorService) finishCycle(start time.Time, channels, matches, errs int) {
	stats := &CycleStats{
		StartedAt: start,
		Duration:  time.Since(start),
		Channels:  channels,
		Matches:   matches,
		Errors:    errs,
	}
	s.mu.Lock()
	s.lastCycle = stats
	s.mu.Unlock()

	s.log.Info().
		Dur("duration", stats.Duration).
		Int("channels", channels).
		Int("matches", matches).
		Int("errors", errs).
		Msg("cycle finished")
}
