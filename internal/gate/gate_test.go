package gate

import (
	"errors"
	"sync"
	"testing"
	"time"

	"dingleup-reward-service/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func playlist(ids ...string) []domain.PlaylistVideo {
	out := make([]domain.PlaylistVideo, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.PlaylistVideo{ID: id, VideoURL: "https://cdn/" + id, Platform: domain.PlatformTikTok})
	}
	return out
}

type recorder struct {
	mu        sync.Mutex
	rewards   [][]string
	completed int
	order     []string
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		Reward: func(ids []string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.rewards = append(r.rewards, ids)
			r.order = append(r.order, "reward")
		},
		Completed: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.completed++
			r.order = append(r.order, "completed")
		},
	}
}

func TestNewRejectsEmptyPlaylist(t *testing.T) {
	if _, err := New(nil, time.Second, Hooks{}); !errors.Is(err, domain.ErrEmptyPlaylist) {
		t.Fatalf("expected ErrEmptyPlaylist, got %v", err)
	}
}

func TestSingleSegmentCloseBoundary(t *testing.T) {
	clock := newFakeClock()
	g, err := NewWithClock(playlist("v1"), 15*time.Second, Hooks{}, clock.Now)
	if err != nil {
		t.Fatalf("new gate: %v", err)
	}

	g.AssetReady(0)
	clock.Advance(14900 * time.Millisecond)
	if g.CanClose() {
		t.Fatalf("expected close disabled at 14.9s")
	}

	clock.Advance(100 * time.Millisecond)
	if !g.CanClose() {
		t.Fatalf("expected close enabled at 15.0s")
	}

	clock.Advance(5 * time.Second)
	if !g.CanClose() {
		t.Fatalf("expected close still enabled at 20s")
	}
}

func TestLoadingDoesNotCountTime(t *testing.T) {
	clock := newFakeClock()
	g, _ := NewWithClock(playlist("v1"), 15*time.Second, Hooks{}, clock.Now)

	clock.Advance(time.Minute)
	snap := g.Tick()
	if snap.Phase != PhaseLoading || snap.CanClose {
		t.Fatalf("expected gate to stay loading before the asset is ready, got %+v", snap)
	}

	g.AssetReady(0)
	if g.CanClose() {
		t.Fatalf("elapsed must start at asset ready")
	}
}

func TestCloseBeforeReadyIsRejected(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{}
	g, _ := NewWithClock(playlist("v1"), 15*time.Second, rec.hooks(), clock.Now)
	g.AssetReady(0)
	clock.Advance(10 * time.Second)

	if err := g.Close(); !errors.Is(err, domain.ErrGateNotReady) {
		t.Fatalf("expected ErrGateNotReady, got %v", err)
	}
	if len(rec.rewards) != 0 || rec.completed != 0 {
		t.Fatalf("no hook may fire before the required time")
	}
	if g.Snapshot().Phase != PhasePlaying {
		t.Fatalf("rejected close must not change phase")
	}
}

func TestCloseFiresHooksExactlyOnce(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{}
	g, _ := NewWithClock(playlist("v1"), 15*time.Second, rec.hooks(), clock.Now)
	g.AssetReady(0)
	clock.Advance(15 * time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.Close(); err != nil {
				t.Errorf("close: %v", err)
			}
		}()
	}
	wg.Wait()

	if len(rec.rewards) != 1 || rec.completed != 1 {
		t.Fatalf("expected hooks once, got rewards=%d completed=%d", len(rec.rewards), rec.completed)
	}
	if rec.order[0] != "reward" || rec.order[1] != "completed" {
		t.Fatalf("expected reward before completed, got %v", rec.order)
	}
	if got := rec.rewards[0]; len(got) != 1 || got[0] != "v1" {
		t.Fatalf("expected watched [v1], got %v", got)
	}
	if g.Snapshot().Phase != PhaseClosed {
		t.Fatalf("expected closed phase")
	}
}

func TestMultiSegmentTransitions(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{}
	g, _ := NewWithClock(playlist("a", "b"), 15*time.Second, rec.hooks(), clock.Now)

	g.AssetReady(0)
	clock.Advance(14 * time.Second)
	if snap := g.Tick(); snap.Segment != 0 || snap.Phase != PhasePlaying {
		t.Fatalf("expected first segment playing, got %+v", snap)
	}

	clock.Advance(time.Second)
	snap := g.Tick()
	if snap.Segment != 1 || snap.Phase != PhaseLoading {
		t.Fatalf("expected forced switch to second segment, got %+v", snap)
	}
	if len(snap.Watched) != 1 || snap.Watched[0] != "a" {
		t.Fatalf("expected first video watched, got %v", snap.Watched)
	}

	// stale ready signal for the previous segment is ignored
	if snap := g.AssetReady(0); snap.Phase != PhaseLoading {
		t.Fatalf("stale ready must not start playback, got %s", snap.Phase)
	}
	g.AssetReady(1)

	clock.Advance(14 * time.Second)
	if g.CanClose() {
		t.Fatalf("29s of 30s must not unlock close")
	}
	if snap := g.Tick(); snap.ElapsedMs != 29000 || snap.Remaining != 1 {
		t.Fatalf("elapsed must be measured from the first segment, got %+v", snap)
	}

	clock.Advance(time.Second)
	if !g.CanClose() {
		t.Fatalf("expected close enabled at 30s")
	}
	if err := g.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := rec.rewards[0]; len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("expected watched [a b], got %v", got)
	}
}

func TestStalledSegmentNeverUnlocks(t *testing.T) {
	for _, tc := range []struct {
		name  string
		steps []time.Duration
	}{
		{name: "ticked at the boundary", steps: []time.Duration{15 * time.Second, 15 * time.Second}},
		{name: "single jump", steps: []time.Duration{30 * time.Second}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clock := newFakeClock()
			rec := &recorder{}
			g, _ := NewWithClock(playlist("a", "b"), 15*time.Second, rec.hooks(), clock.Now)
			g.AssetReady(0)

			// the second asset never loads
			for _, step := range tc.steps {
				clock.Advance(step)
				g.Tick()
			}
			clock.Advance(time.Minute)
			snap := g.Tick()
			if snap.Phase != PhaseLoading || snap.Segment != 1 || snap.CanClose {
				t.Fatalf("expected gate stalled loading the second segment, got %+v", snap)
			}
			if len(snap.Watched) != 1 || snap.Watched[0] != "a" {
				t.Fatalf("only the played video may count as watched, got %v", snap.Watched)
			}
			if err := g.Close(); !errors.Is(err, domain.ErrGateNotReady) {
				t.Fatalf("expected ErrGateNotReady, got %v", err)
			}
			if len(rec.rewards) != 0 {
				t.Fatalf("stalled gate must not reward, got %v", rec.rewards)
			}
		})
	}
}

func TestSuspendedClientCatchesUp(t *testing.T) {
	clock := newFakeClock()
	g, _ := NewWithClock(playlist("a", "b"), 15*time.Second, Hooks{}, clock.Now)
	g.AssetReady(0)

	clock.Advance(45 * time.Second)
	snap := g.Tick()
	if snap.Segment != 1 || snap.Phase != PhaseLoading {
		t.Fatalf("expected switch to second segment after resume, got %+v", snap)
	}

	// elapsed is still measured from the first segment
	snap = g.AssetReady(1)
	if !snap.CanClose || snap.Phase != PhaseReadyToClose {
		t.Fatalf("expected ready once the second segment plays, got %+v", snap)
	}
	if len(snap.Watched) != 2 {
		t.Fatalf("expected both videos watched, got %v", snap.Watched)
	}
}

func TestReadyToCloseIsMonotonic(t *testing.T) {
	clock := newFakeClock()
	g, _ := NewWithClock(playlist("a"), 15*time.Second, Hooks{}, clock.Now)
	g.AssetReady(0)
	clock.Advance(16 * time.Second)
	if !g.ReadyToClose() {
		t.Fatalf("expected ready")
	}

	clock.Advance(-10 * time.Second)
	g.SetMuted(true)
	g.AssetReady(0)
	if !g.ReadyToClose() {
		t.Fatalf("ready to close must never revert")
	}
	_ = g.Close()
	if !g.ReadyToClose() {
		t.Fatalf("ready to close must survive close")
	}
}

func TestDuplicateVideoCountsOnce(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{}
	g, _ := NewWithClock(playlist("v", "v"), 15*time.Second, rec.hooks(), clock.Now)
	g.AssetReady(0)
	clock.Advance(15 * time.Second)
	g.Tick()
	g.AssetReady(1)
	clock.Advance(15 * time.Second)
	if err := g.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := rec.rewards[0]; len(got) != 1 || got[0] != "v" {
		t.Fatalf("expected deduplicated watched ids, got %v", got)
	}
}

func TestAbandonForfeitsReward(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{}
	g, _ := NewWithClock(playlist("a"), 15*time.Second, rec.hooks(), clock.Now)
	g.AssetReady(0)
	clock.Advance(5 * time.Second)

	g.Abandon()
	clock.Advance(time.Minute)
	if err := g.Close(); !errors.Is(err, domain.ErrGateNotReady) {
		t.Fatalf("expected abandoned gate to refuse close, got %v", err)
	}
	if len(rec.rewards) != 0 {
		t.Fatalf("abandoned gate must not reward")
	}
	if g.Snapshot().Phase != PhaseAbandoned {
		t.Fatalf("expected abandoned phase")
	}
}

func TestMuteToggle(t *testing.T) {
	g, _ := New(playlist("a"), time.Second, Hooks{})
	if !g.SetMuted(true).Muted {
		t.Fatalf("expected muted")
	}
	if g.SetMuted(false).Muted {
		t.Fatalf("expected unmuted")
	}
}
