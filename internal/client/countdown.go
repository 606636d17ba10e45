package client

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Othmneto/islamic-portal-app-sub003/internal/models"
)

// Position is the current/next pair derived from the day's instants.
type Position struct {
	Current   string
	CurrentAt time.Time
	Next      string
	NextAt    time.Time
}

// CurrentNext determines the most recent instant already passed and the
// first instant still ahead. Before fajr the current prayer wraps to
// yesterday's isha; after isha the next is tomorrow's fajr.
func CurrentNext(times models.PrayerTimesForDay, now time.Time) Position {
	ordered := times.Ordered()

	if now.Before(ordered[0].At) {
		return Position{
			Current:   "isha",
			CurrentAt: times.Isha.Add(-24 * time.Hour),
			Next:      "fajr",
			NextAt:    times.Fajr,
		}
	}

	for i := len(ordered) - 1; i >= 0; i-- {
		if !now.Before(ordered[i].At) {
			pos := Position{Current: ordered[i].Name, CurrentAt: ordered[i].At}
			if i+1 < len(ordered) {
				pos.Next = ordered[i+1].Name
				pos.NextAt = ordered[i+1].At
			} else {
				pos.Next = "fajr"
				pos.NextAt = times.Fajr.Add(24 * time.Hour)
			}
			return pos
		}
	}

	// Unreachable: the early-return above covers now before fajr.
	return Position{}
}

// FormatCountdown renders a duration as H:MM:SS, clamping negatives to zero.
func FormatCountdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d/time.Minute) % 60
	s := int(d/time.Second) % 60
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}

const (
	cueWindowBefore = 2 * time.Second
	cueWindowAfter  = 800 * time.Millisecond
)

// Engine drives one tab's countdown display at 1 Hz, requests a refresh on
// timezone-day rollover, and fires the local audio cue at the trigger
// instant for the active tab.
type Engine struct {
	prefs   models.Preferences
	times   models.PrayerTimesForDay
	tz      *time.Location
	arbiter *Arbiter
	refresh func(ctx context.Context) (models.PrayerTimesForDay, error)
	render  func(pos Position, countdown string)
	logger  *zap.Logger
	now     func() time.Time

	masterAudio bool
	lastCue     string
}

func NewEngine(prefs models.Preferences, times models.PrayerTimesForDay, arbiter *Arbiter,
	refresh func(ctx context.Context) (models.PrayerTimesForDay, error),
	render func(pos Position, countdown string), logger *zap.Logger) (*Engine, error) {

	tz, err := time.LoadLocation(times.TZ)
	if err != nil {
		return nil, fmt.Errorf("countdown engine: %w", err)
	}
	return &Engine{
		prefs:       prefs,
		times:       times,
		tz:          tz,
		arbiter:     arbiter,
		refresh:     refresh,
		render:      render,
		logger:      logger,
		now:         time.Now,
		masterAudio: prefs.Enabled,
	}, nil
}

// SetMasterAudio toggles the tab-wide audio switch.
func (e *Engine) SetMasterAudio(on bool) { e.masterAudio = on }

// Run ticks at 1 Hz until the context ends.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.Tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Tick performs one cycle: rollover guard, countdown render, audio cue.
func (e *Engine) Tick(ctx context.Context) {
	now := e.now()

	// Rollover guard: compare today in the subscription's timezone with
	// the calendar day implied by the stored fajr instant. On mismatch
	// the cached instants are stale and must not be trusted.
	today := now.In(e.tz).Format("2006-01-02")
	if today != e.times.Fajr.In(e.tz).Format("2006-01-02") {
		fresh, err := e.refresh(ctx)
		if err != nil {
			e.logger.Warn("rollover refresh failed", zap.Error(err))
			return
		}
		e.times = fresh
	}

	pos := CurrentNext(e.times, now)
	if e.render != nil {
		e.render(pos, FormatCountdown(pos.NextAt.Sub(now)))
	}

	e.maybeCue(pos, now)
}

// maybeCue fires the local audio cue once per trigger instant, inside the
// window from cueWindowBefore ahead of it to cueWindowAfter past it. Both
// halves matter: once the instant passes, CurrentNext has already advanced
// Next, so the trailing half is checked against Current.
func (e *Engine) maybeCue(pos Position, now time.Time) {
	var prayer string
	var at time.Time
	switch {
	case pos.NextAt.Sub(now) <= cueWindowBefore:
		prayer, at = pos.Next, pos.NextAt
	case now.Sub(pos.CurrentAt) <= cueWindowAfter:
		prayer, at = pos.Current, pos.CurrentAt
	default:
		return
	}
	if !e.masterAudio || !e.prefs.PerPrayer[prayer] {
		return
	}
	cueID := prayer + "@" + at.Format(time.RFC3339)
	if cueID == e.lastCue {
		return
	}
	e.lastCue = cueID

	if e.arbiter != nil {
		e.arbiter.RequestPlay("adhan", e.prefs.Audio.File)
	}
}
