// Package scheduler derives the next reminder/main trigger instants for
// every user with an active, enabled subscription and arms in-memory timers
// for them. Timers are not persisted; a restart loses pending triggers
// until the next resync pass, which callers must tolerate.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Othmneto/islamic-portal-app-sub003/internal/dispatch"
	"github.com/Othmneto/islamic-portal-app-sub003/internal/models"
	"github.com/Othmneto/islamic-portal-app-sub003/internal/store"
)

const dateLayout = "2006-01-02"

// TimesSource resolves the prayer times of one local day for a
// subscription. Implemented by prayer.Service.
type TimesSource interface {
	TimesFor(ctx context.Context, sub models.Subscription, date time.Time) (models.PrayerTimesForDay, error)
}

// Dispatcher fans a payload out to a target set. Implemented by
// dispatch.Dispatcher.
type Dispatcher interface {
	Send(ctx context.Context, subs []models.Subscription, payload models.NotificationPayload) dispatch.Result
}

// EventSink receives client events after a main alert goes out. May be nil.
type EventSink interface {
	PublishEvent(ctx context.Context, event models.ClientEvent) error
}

// Trigger is one armed instant. Ephemeral, in-memory only.
type Trigger struct {
	Prayer  string
	Kind    models.TriggerKind
	FiresAt time.Time
}

type userSchedule struct {
	userID   string
	endpoint string // set for anonymous single-device users
	tz       *time.Location
	date     string // local calendar date the triggers were computed for
	timers   []*time.Timer
	armed    []Trigger
}

type Scheduler struct {
	store      store.SubscriptionStore
	times      TimesSource
	dispatcher Dispatcher
	events     EventSink
	logger     *zap.Logger

	cron       *cron.Cron
	resyncSpec string
	stopChan   chan struct{}
	now        func() time.Time

	mu    sync.Mutex
	users map[string]*userSchedule
}

func New(subs store.SubscriptionStore, times TimesSource, dispatcher Dispatcher, events EventSink,
	resyncSpec string, logger *zap.Logger) *Scheduler {
	if resyncSpec == "" {
		resyncSpec = "@every 15m"
	}
	return &Scheduler{
		store:      subs,
		times:      times,
		dispatcher: dispatcher,
		events:     events,
		logger:     logger,
		cron:       cron.New(),
		resyncSpec: resyncSpec,
		stopChan:   make(chan struct{}),
		now:        time.Now,
		users:      make(map[string]*userSchedule),
	}
}

// Start arms triggers for every known user, schedules the periodic resync
// (which also bounds the loss window after a restart) and begins the 1 Hz
// rollover watch.
func (s *Scheduler) Start(ctx context.Context) error {
	s.Resync(ctx)

	if _, err := s.cron.AddFunc(s.resyncSpec, func() {
		s.Resync(context.Background())
	}); err != nil {
		return err
	}
	s.cron.Start()

	go s.run(ctx)
	s.logger.Info("scheduler started", zap.String("resync", s.resyncSpec))
	return nil
}

func (s *Scheduler) Stop() {
	close(s.stopChan)
	s.cron.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, us := range s.users {
		for _, t := range us.timers {
			t.Stop()
		}
	}
	s.users = make(map[string]*userSchedule)
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// tick detects the local-date rollover per user. The comparison runs in the
// subscription's timezone, never the server's.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var rolled []string
	for key, us := range s.users {
		if now.In(us.tz).Format(dateLayout) != us.date {
			rolled = append(rolled, key)
		}
	}
	s.mu.Unlock()

	for _, key := range rolled {
		s.logger.Info("local date rolled over, recomputing", zap.String("user", key))
		s.rearmKey(ctx, key)
	}
}

// Resync recomputes the full trigger set from the store. Covers newly
// subscribed devices and recovery after a restart dropped the timers.
func (s *Scheduler) Resync(ctx context.Context) {
	subs, err := s.store.ListActive(ctx, "")
	if err != nil {
		s.logger.Error("resync: listing subscriptions failed", zap.Error(err))
		return
	}

	groups := make(map[string][]models.Subscription)
	for _, sub := range subs {
		groups[scheduleKey(sub)] = append(groups[scheduleKey(sub)], sub)
	}

	// Drop schedules for users whose last device unsubscribed.
	s.mu.Lock()
	for key, us := range s.users {
		if _, ok := groups[key]; !ok {
			for _, t := range us.timers {
				t.Stop()
			}
			delete(s.users, key)
		}
	}
	s.mu.Unlock()

	for key, group := range groups {
		s.rearmGroup(ctx, key, group)
	}
}

func scheduleKey(sub models.Subscription) string {
	if sub.UserID != "" {
		return sub.UserID
	}
	return "endpoint:" + sub.Endpoint
}

func (s *Scheduler) rearmKey(ctx context.Context, key string) {
	s.mu.Lock()
	us, ok := s.users[key]
	s.mu.Unlock()
	if !ok {
		return
	}

	var (
		subs []models.Subscription
		err  error
	)
	if us.userID != "" {
		subs, err = s.store.ListActive(ctx, us.userID)
	} else {
		var sub models.Subscription
		sub, err = s.store.GetByEndpoint(ctx, us.endpoint)
		if err == nil {
			subs = []models.Subscription{sub}
		}
	}
	if err != nil || len(subs) == 0 {
		s.clear(key)
		return
	}
	s.rearmGroup(ctx, key, subs)
}

// rearmGroup discards the stale timer set for one user and arms a fresh one
// from newly computed prayer times.
func (s *Scheduler) rearmGroup(ctx context.Context, key string, subs []models.Subscription) {
	primary := subs[0]
	if !primary.Preferences.Enabled {
		s.clear(key)
		return
	}

	tz, err := time.LoadLocation(primary.Timezone)
	if err != nil {
		s.logger.Error("invalid subscription timezone",
			zap.String("user", key), zap.String("tz", primary.Timezone))
		return
	}

	now := s.now()
	times, err := s.times.TimesFor(ctx, primary, now)
	if err != nil {
		s.logger.Error("prayer time computation failed", zap.String("user", key), zap.Error(err))
		return
	}

	triggers := deriveTriggers(times, primary.Preferences, now)
	if !hasMain(triggers) {
		// Everything today has passed: the next trigger is tomorrow's
		// fajr, never a stale replay of an instant already behind us.
		tomorrow, err := s.times.TimesFor(ctx, primary, now.In(tz).AddDate(0, 0, 1))
		if err == nil && primary.Preferences.PerPrayer["fajr"] {
			triggers = append(triggers, deriveTriggersFor("fajr", tomorrow.Fajr, primary.Preferences, now)...)
		}
	}

	us := &userSchedule{
		userID: primary.UserID,
		tz:     tz,
		date:   times.Date,
		armed:  triggers,
	}
	if primary.UserID == "" {
		us.endpoint = primary.Endpoint
	}

	for _, tr := range triggers {
		tr := tr
		us.timers = append(us.timers, time.AfterFunc(tr.FiresAt.Sub(now), func() {
			s.fire(key, tr)
		}))
	}

	s.mu.Lock()
	if old, ok := s.users[key]; ok {
		for _, t := range old.timers {
			t.Stop()
		}
	}
	s.users[key] = us
	s.mu.Unlock()

	s.logger.Debug("triggers armed",
		zap.String("user", key), zap.String("date", times.Date), zap.Int("count", len(triggers)))
}

func (s *Scheduler) clear(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if us, ok := s.users[key]; ok {
		for _, t := range us.timers {
			t.Stop()
		}
		delete(s.users, key)
	}
}

// deriveTriggers computes the strictly-future trigger instants for one day.
func deriveTriggers(times models.PrayerTimesForDay, prefs models.Preferences, now time.Time) []Trigger {
	var out []Trigger
	for _, name := range models.PrayerNames {
		if !prefs.PerPrayer[name] {
			continue
		}
		out = append(out, deriveTriggersFor(name, times.Instant(name), prefs, now)...)
	}
	return out
}

func deriveTriggersFor(prayer string, instant time.Time, prefs models.Preferences, now time.Time) []Trigger {
	var out []Trigger
	if prefs.ReminderMinutes > 0 {
		reminder := instant.Add(-time.Duration(prefs.ReminderMinutes) * time.Minute)
		if reminder.After(now) {
			out = append(out, Trigger{Prayer: prayer, Kind: models.KindReminder, FiresAt: reminder})
		}
	}
	if instant.After(now) {
		out = append(out, Trigger{Prayer: prayer, Kind: models.KindMain, FiresAt: instant})
	}
	return out
}

func hasMain(triggers []Trigger) bool {
	for _, tr := range triggers {
		if tr.Kind == models.KindMain {
			return true
		}
	}
	return false
}

// fire resolves the current target set from the store (devices may have
// come or gone since arming) and fans the payload out.
func (s *Scheduler) fire(key string, tr Trigger) {
	ctx := context.Background()

	s.mu.Lock()
	us, ok := s.users[key]
	s.mu.Unlock()
	if !ok {
		return
	}

	var (
		subs []models.Subscription
		err  error
	)
	if us.userID != "" {
		subs, err = s.store.ListActive(ctx, us.userID)
	} else {
		var sub models.Subscription
		sub, err = s.store.GetByEndpoint(ctx, us.endpoint)
		if err == nil {
			subs = []models.Subscription{sub}
		}
	}
	if err != nil || len(subs) == 0 {
		return
	}

	prefs := subs[0].Preferences
	if !prefs.Enabled || !prefs.PerPrayer[tr.Prayer] {
		return
	}

	day := tr.FiresAt.In(us.tz).Format(dateLayout)
	payload := models.BuildPrayerPayload(tr.Prayer, tr.Kind, day, tr.FiresAt, prefs)
	res := s.dispatcher.Send(ctx, subs, payload)

	if s.events != nil && tr.Kind == models.KindMain && res.Delivered > 0 {
		if err := s.events.PublishEvent(ctx, models.ClientEvent{
			Type:      models.EventPlayAdhan,
			Prayer:    tr.Prayer,
			AudioFile: prefs.Audio.File,
			Timestamp: tr.FiresAt.Unix(),
		}); err != nil {
			s.logger.Warn("event publish failed", zap.Error(err))
		}
	}
}
