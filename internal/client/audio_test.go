package client

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePlayer struct {
	mu      sync.Mutex
	plays   []string
	stops   int
	gains   []float64
	playErr error
	length  time.Duration
}

func (p *fakePlayer) Play(file string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playErr != nil {
		return p.playErr
	}
	p.plays = append(p.plays, file)
	return nil
}

func (p *fakePlayer) SetGain(gain float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gains = append(p.gains, gain)
}

func (p *fakePlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
}

func (p *fakePlayer) Duration(string) time.Duration { return p.length }

func (p *fakePlayer) playCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.plays)
}

func waitForState(t *testing.T, a *Arbiter, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if a.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("arbiter stuck in state %d, want %d", a.State(), want)
}

func testConfig() ArbiterConfig {
	return ArbiterConfig{
		RaceWindow: 100 * time.Millisecond,
		Cooldown:   30 * time.Second,
		FadeIn:     20 * time.Millisecond,
		StopSlack:  30 * time.Millisecond,
		Volume:     0.9,
	}
}

func TestEarlierVisibleIntentWinsRace(t *testing.T) {
	bus := NewBus()
	t0 := time.Date(2025, 1, 15, 18, 5, 0, 0, time.UTC)

	playerA, playerB := &fakePlayer{length: 30 * time.Millisecond}, &fakePlayer{length: 30 * time.Millisecond}
	a := NewArbiter("tab-a", bus, playerA, testConfig(), zap.NewNop())
	b := NewArbiter("tab-b", bus, playerB, testConfig(), zap.NewNop())
	t.Cleanup(a.Close)
	t.Cleanup(b.Close)

	a.now = func() time.Time { return t0 }
	b.now = func() time.Time { return t0.Add(10 * time.Millisecond) }

	var wg sync.WaitGroup
	results := make([]bool, 2)
	wg.Add(2)
	go func() { defer wg.Done(); results[0] = a.RequestPlay("adhan", "adhan.mp3") }()
	go func() { defer wg.Done(); results[1] = b.RequestPlay("adhan", "adhan.mp3") }()
	wg.Wait()

	assert.True(t, results[0], "earlier intent should play")
	assert.False(t, results[1], "later intent should yield")
	assert.Equal(t, 1, playerA.playCount())
	assert.Equal(t, 0, playerB.playCount())

	// The winner's hard-stop timer releases it and the stop broadcast
	// returns the follower to idle.
	waitForState(t, a, StateIdle)
	waitForState(t, b, StateIdle)
}

func TestCooldownBlocksImmediateReplay(t *testing.T) {
	bus := NewBus()
	var clockMu sync.Mutex
	clock := time.Date(2025, 1, 15, 18, 5, 0, 0, time.UTC)

	player := &fakePlayer{length: 10 * time.Millisecond}
	a := NewArbiter("tab-a", bus, player, testConfig(), zap.NewNop())
	t.Cleanup(a.Close)
	a.now = func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return clock
	}

	require.True(t, a.RequestPlay("adhan", "adhan.mp3"))
	waitForState(t, a, StateIdle)

	// Same clock instant: still within the cooldown for this kind.
	assert.False(t, a.RequestPlay("adhan", "adhan.mp3"))
	assert.Equal(t, 1, player.playCount())

	// A different kind has its own cooldown ledger.
	require.True(t, a.RequestPlay("reminder", "chime.mp3"))
	waitForState(t, a, StateIdle)

	clockMu.Lock()
	clock = clock.Add(31 * time.Second)
	clockMu.Unlock()
	require.True(t, a.RequestPlay("adhan", "adhan.mp3"))
	waitForState(t, a, StateIdle)
	assert.Equal(t, 3, player.playCount())
}

func TestAutoplayBlockedRequiresGesture(t *testing.T) {
	bus := NewBus()
	player := &fakePlayer{length: 10 * time.Millisecond, playErr: ErrAutoplayBlocked}
	a := NewArbiter("tab-a", bus, player, testConfig(), zap.NewNop())
	t.Cleanup(a.Close)

	assert.False(t, a.RequestPlay("adhan", "adhan.mp3"))
	assert.True(t, a.NeedsGesture())
	assert.Equal(t, StateIdle, a.State())

	// Blocked until the user gesture arrives, then playback proceeds.
	assert.False(t, a.RequestPlay("adhan", "adhan.mp3"))

	player.mu.Lock()
	player.playErr = nil
	player.mu.Unlock()
	a.EnableAudio()

	assert.True(t, a.RequestPlay("adhan", "adhan.mp3"))
	assert.False(t, a.NeedsGesture())
}

func TestLeaderStopReleasesFollower(t *testing.T) {
	bus := NewBus()
	cfg := testConfig()
	cfg.StopSlack = 10 * time.Second // keep the leader playing until the explicit stop

	playerA, playerB := &fakePlayer{length: time.Minute}, &fakePlayer{length: time.Minute}
	a := NewArbiter("tab-a", bus, playerA, cfg, zap.NewNop())
	b := NewArbiter("tab-b", bus, playerB, cfg, zap.NewNop())
	t.Cleanup(a.Close)
	t.Cleanup(b.Close)

	require.True(t, a.RequestPlay("adhan", "adhan.mp3"))
	waitForState(t, a, StateLeader)
	waitForState(t, b, StateFollower)

	a.Stop()
	waitForState(t, a, StateIdle)
	waitForState(t, b, StateIdle)
}
