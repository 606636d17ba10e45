package client

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrAutoplayBlocked is returned by a Player when the browser requires a
// user gesture before audio may start.
var ErrAutoplayBlocked = errors.New("autoplay blocked")

// Player is the tab's audio output.
type Player interface {
	Play(file string) error
	SetGain(gain float64)
	Stop()
	Duration(file string) time.Duration
}

// State of the arbiter's per-tab machine:
// Idle → Requesting → Leader(Playing) → Idle, or Idle → Follower → Idle.
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateLeader
	StateFollower
)

type ArbiterConfig struct {
	RaceWindow time.Duration // how long to wait for rival play-intents
	Cooldown   time.Duration // minimum gap after a finished play per kind
	FadeIn     time.Duration
	StopSlack  time.Duration // added to the track duration for the hard stop
	Volume     float64
}

func (c ArbiterConfig) withDefaults() ArbiterConfig {
	if c.RaceWindow <= 0 {
		c.RaceWindow = 50 * time.Millisecond
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	if c.FadeIn <= 0 {
		c.FadeIn = 1500 * time.Millisecond
	}
	if c.StopSlack <= 0 {
		c.StopSlack = 2 * time.Second
	}
	if c.Volume <= 0 {
		c.Volume = 0.8
	}
	return c
}

// Arbiter negotiates which single visible tab plays the audible alert. The
// protocol is advisory: a timestamped intent broadcast plus a short race
// window, with the earliest visible intent winning. A rare double-play is
// tolerated; a stuck Playing state is not.
type Arbiter struct {
	tabID  string
	bus    *Bus
	player Player
	cfg    ArbiterConfig
	logger *zap.Logger
	now    func() time.Time

	mu           sync.Mutex
	state        State
	visible      bool
	needsGesture bool
	lost         bool
	raceKind     string
	intentAt     time.Time
	lastFinish   map[string]time.Time
	stopTimer    *time.Timer

	inbox <-chan Message
	unsub func()
	done  chan struct{}
}

func NewArbiter(tabID string, bus *Bus, player Player, cfg ArbiterConfig, logger *zap.Logger) *Arbiter {
	inbox, unsub := bus.Subscribe()
	a := &Arbiter{
		tabID:      tabID,
		bus:        bus,
		player:     player,
		cfg:        cfg.withDefaults(),
		logger:     logger,
		now:        time.Now,
		state:      StateIdle,
		visible:    true,
		lastFinish: make(map[string]time.Time),
		inbox:      inbox,
		unsub:      unsub,
		done:       make(chan struct{}),
	}
	go a.watch()
	return a
}

func (a *Arbiter) watch() {
	for {
		select {
		case msg, ok := <-a.inbox:
			if !ok {
				return
			}
			a.handle(msg)
		case <-a.done:
			return
		}
	}
}

func (a *Arbiter) handle(msg Message) {
	if msg.TabID == a.tabID {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	switch msg.Type {
	case MsgPlayIntent:
		// Only a visible rival with an earlier claim beats us.
		if a.state == StateRequesting && msg.Kind == a.raceKind &&
			msg.Visible && msg.Timestamp.Before(a.intentAt) {
			a.lost = true
		}
	case MsgNowPlaying:
		switch a.state {
		case StateRequesting:
			a.lost = true
		case StateLeader:
			// Advisory protocol: both tabs claimed within the window.
			// We already announced too; keep playing.
		default:
			a.state = StateFollower
			a.player.Stop()
		}
	case MsgStop:
		if a.state == StateFollower {
			a.state = StateIdle
		}
	}
}

// SetVisible records the tab's visibility; hidden tabs always yield to
// visible ones in the race.
func (a *Arbiter) SetVisible(visible bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.visible = visible
}

// EnableAudio is called from a user gesture after autoplay was blocked.
func (a *Arbiter) EnableAudio() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.needsGesture = false
}

// NeedsGesture reports whether the one-tap "enable audio" affordance should
// be shown.
func (a *Arbiter) NeedsGesture() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.needsGesture
}

func (a *Arbiter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// RequestPlay runs the leader race for one alert kind and, on winning,
// plays file with a fade-in. Returns true when this tab ended up playing.
func (a *Arbiter) RequestPlay(kind, file string) bool {
	a.mu.Lock()
	if a.needsGesture || a.state != StateIdle {
		a.mu.Unlock()
		return false
	}
	now := a.now()
	if finish, ok := a.lastFinish[kind]; ok && now.Before(finish.Add(a.cfg.Cooldown)) {
		a.mu.Unlock()
		return false
	}
	a.state = StateRequesting
	a.raceKind = kind
	a.intentAt = now
	a.lost = false
	visible := a.visible
	a.mu.Unlock()

	a.bus.Publish(Message{
		Type:      MsgPlayIntent,
		TabID:     a.tabID,
		Kind:      kind,
		Timestamp: now,
		Visible:   visible,
	})

	time.Sleep(a.cfg.RaceWindow)

	a.mu.Lock()
	if a.lost {
		a.state = StateFollower
		a.mu.Unlock()
		return false
	}
	a.state = StateLeader
	a.mu.Unlock()

	a.bus.Publish(Message{Type: MsgNowPlaying, TabID: a.tabID, Kind: kind, Timestamp: a.now(), Visible: visible})
	return a.play(kind, file)
}

func (a *Arbiter) play(kind, file string) bool {
	a.player.SetGain(0)
	if err := a.player.Play(file); err != nil {
		a.mu.Lock()
		a.state = StateIdle
		if errors.Is(err, ErrAutoplayBlocked) {
			a.needsGesture = true
		}
		a.mu.Unlock()
		a.logger.Warn("playback failed", zap.String("file", file), zap.Error(err))
		return false
	}

	go a.fadeIn()

	// Hard stop: force Idle even if the end event never arrives.
	limit := a.player.Duration(file) + a.cfg.StopSlack
	a.mu.Lock()
	a.stopTimer = time.AfterFunc(limit, func() {
		a.finish(kind, true)
	})
	a.mu.Unlock()
	return true
}

// fadeIn ramps gain linearly from near zero to the target volume.
func (a *Arbiter) fadeIn() {
	const steps = 10
	for i := 1; i <= steps; i++ {
		a.mu.Lock()
		leading := a.state == StateLeader
		a.mu.Unlock()
		if !leading {
			return
		}
		a.player.SetGain(a.cfg.Volume * float64(i) / steps)
		time.Sleep(a.cfg.FadeIn / steps)
	}
}

// Stop ends this tab's playback and broadcasts the stop to all tabs.
func (a *Arbiter) Stop() {
	a.mu.Lock()
	kind := a.raceKind
	a.mu.Unlock()
	a.finish(kind, true)
}

func (a *Arbiter) finish(kind string, broadcast bool) {
	a.mu.Lock()
	if a.state != StateLeader {
		a.mu.Unlock()
		return
	}
	a.player.Stop()
	a.state = StateIdle
	a.lastFinish[kind] = a.now()
	if a.stopTimer != nil {
		a.stopTimer.Stop()
		a.stopTimer = nil
	}
	a.mu.Unlock()

	if broadcast {
		a.bus.Publish(Message{Type: MsgStop, TabID: a.tabID, Kind: kind, Timestamp: a.now()})
	}
}

// Close detaches the arbiter from the bus.
func (a *Arbiter) Close() {
	close(a.done)
	a.unsub()
}
