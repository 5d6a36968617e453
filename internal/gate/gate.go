// Package gate implements the timed playback gate that guards reward videos.
//
// A Gate is an explicit state machine over a playlist of one or more video
// segments. Elapsed time is always recomputed from the wall-clock start of
// the first segment, so a suspended client catches up on its next tick
// instead of drifting. The close action, and with it the reward, is only
// available once the full required duration has elapsed.
package gate

import (
	"sync"
	"time"

	"dingleup-reward-service/internal/domain"
)

// Phase is the state of a playback gate.
type Phase int

const (
	PhaseLoading Phase = iota
	PhasePlaying
	PhaseSegmentTransition
	PhaseReadyToClose
	PhaseClosed
	PhaseAbandoned
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhasePlaying:
		return "playing"
	case PhaseSegmentTransition:
		return "segment_transition"
	case PhaseReadyToClose:
		return "ready_to_close"
	case PhaseClosed:
		return "closed"
	case PhaseAbandoned:
		return "abandoned"
	}
	return "unknown"
}

// Terminal reports whether no further transitions are possible.
func (p Phase) Terminal() bool {
	return p == PhaseClosed || p == PhaseAbandoned
}

// DefaultSegmentDuration is the mandatory watch time per video segment.
const DefaultSegmentDuration = 15 * time.Second

// Hooks are invoked exactly once, in order, when the gate is closed after the
// required watch time. Both are optional.
type Hooks struct {
	Reward    func(watchedVideoIDs []string)
	Completed func()
}

// Snapshot is a read-only view of the gate for rendering.
type Snapshot struct {
	Phase        Phase                `json:"-"`
	PhaseName    string               `json:"phase"`
	Segment      int                  `json:"segment"`
	Segments     int                  `json:"segments"`
	Video        domain.PlaylistVideo `json:"video"`
	Elapsed      time.Duration        `json:"-"`
	Required     time.Duration        `json:"-"`
	ElapsedMs    int64                `json:"elapsedMs"`
	RequiredMs   int64                `json:"requiredMs"`
	Remaining    int                  `json:"remainingSeconds"`
	ReadyToClose bool                 `json:"readyToClose"`
	CanClose     bool                 `json:"canClose"`
	Muted        bool                 `json:"muted"`
	Watched      []string             `json:"watchedVideoIds"`
}

// Gate is the playback state machine for one reward session.
type Gate struct {
	playlist   []domain.PlaylistVideo
	perSegment time.Duration
	now        func() time.Time
	hooks      Hooks

	mu           sync.Mutex
	phase        Phase
	segment      int
	started      bool
	startAt      time.Time
	watched      []string
	watchedSet   map[string]struct{}
	muted        bool
	readyToClose bool
	reported     bool
}

// New builds a gate over playlist with the given per-segment duration.
func New(playlist []domain.PlaylistVideo, perSegment time.Duration, hooks Hooks) (*Gate, error) {
	return NewWithClock(playlist, perSegment, hooks, time.Now)
}

// NewWithClock allows deterministic time in tests.
func NewWithClock(playlist []domain.PlaylistVideo, perSegment time.Duration, hooks Hooks, now func() time.Time) (*Gate, error) {
	if len(playlist) == 0 {
		return nil, domain.ErrEmptyPlaylist
	}
	if perSegment <= 0 {
		perSegment = DefaultSegmentDuration
	}
	videos := make([]domain.PlaylistVideo, len(playlist))
	copy(videos, playlist)
	return &Gate{
		playlist:   videos,
		perSegment: perSegment,
		now:        now,
		hooks:      hooks,
		phase:      PhaseLoading,
		watchedSet: make(map[string]struct{}, len(videos)),
	}, nil
}

// Required is the total watch time before the gate may close.
func (g *Gate) Required() time.Duration {
	return time.Duration(len(g.playlist)) * g.perSegment
}

// AssetReady signals that the video for segment has buffered enough to play.
// Signals for a segment other than the current one are ignored.
func (g *Gate) AssetReady(segment int) Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.phase.Terminal() && segment == g.segment && g.phase == PhaseLoading {
		g.phase = PhasePlaying
		if !g.started {
			g.started = true
			g.startAt = g.now()
		}
	}
	g.advanceLocked()
	return g.snapshotLocked()
}

// Tick recomputes elapsed time and applies any due transitions.
func (g *Gate) Tick() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.advanceLocked()
	return g.snapshotLocked()
}

// CanClose reports whether the close action is enabled.
func (g *Gate) CanClose() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.advanceLocked()
	return g.readyToClose && !g.phase.Terminal()
}

// ReadyToClose reports whether the required watch time has been reached. Once
// true it stays true for the lifetime of the gate.
func (g *Gate) ReadyToClose() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.advanceLocked()
	return g.readyToClose
}

// SetMuted toggles audio for the remaining playback.
func (g *Gate) SetMuted(muted bool) Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.muted = muted
	return g.snapshotLocked()
}

// Close handles the user's close action. Before the required time has
// elapsed it returns ErrGateNotReady and changes nothing. The first close
// after that fires the hooks; later closes are silent no-ops.
func (g *Gate) Close() error {
	g.mu.Lock()
	g.advanceLocked()
	if g.reported || g.phase == PhaseClosed {
		g.mu.Unlock()
		return nil
	}
	if !g.readyToClose || g.phase == PhaseAbandoned {
		g.mu.Unlock()
		return domain.ErrGateNotReady
	}
	g.reported = true
	g.phase = PhaseClosed
	watched := append([]string(nil), g.watched...)
	hooks := g.hooks
	g.mu.Unlock()

	if hooks.Reward != nil {
		hooks.Reward(watched)
	}
	if hooks.Completed != nil {
		hooks.Completed()
	}
	return nil
}

// Abandon tears the gate down without a reward. It has no effect once closed.
func (g *Gate) Abandon() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.phase != PhaseClosed {
		g.phase = PhaseAbandoned
	}
}

// Snapshot returns the current view without applying transitions.
func (g *Gate) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotLocked()
}

func (g *Gate) elapsedLocked() time.Duration {
	if !g.started {
		return 0
	}
	elapsed := g.now().Sub(g.startAt)
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// advanceLocked applies due transitions. Segment switches and the unlock
// happen only from Playing, so every segment's asset has to load before the
// gate can close. A segment that never loads stalls the gate in Loading.
func (g *Gate) advanceLocked() {
	if !g.started || g.phase != PhasePlaying || g.readyToClose {
		return
	}
	elapsed := g.elapsedLocked()
	if g.segment+1 < len(g.playlist) && elapsed >= time.Duration(g.segment+1)*g.perSegment {
		g.phase = PhaseSegmentTransition
		g.markWatchedLocked(g.playlist[g.segment].ID)
		g.segment++
		g.phase = PhaseLoading
		return
	}
	if elapsed >= g.Required() {
		g.markWatchedLocked(g.playlist[g.segment].ID)
		g.readyToClose = true
		g.phase = PhaseReadyToClose
	}
}

func (g *Gate) markWatchedLocked(id string) {
	if _, ok := g.watchedSet[id]; ok {
		return
	}
	g.watchedSet[id] = struct{}{}
	g.watched = append(g.watched, id)
}

func (g *Gate) snapshotLocked() Snapshot {
	elapsed := g.elapsedLocked()
	required := g.Required()
	remaining := 0
	if !g.readyToClose && elapsed < required {
		left := required - elapsed
		remaining = int((left + time.Second - 1) / time.Second)
	}
	return Snapshot{
		Phase:        g.phase,
		PhaseName:    g.phase.String(),
		Segment:      g.segment,
		Segments:     len(g.playlist),
		Video:        g.playlist[g.segment],
		Elapsed:      elapsed,
		Required:     required,
		ElapsedMs:    elapsed.Milliseconds(),
		RequiredMs:   required.Milliseconds(),
		Remaining:    remaining,
		ReadyToClose: g.readyToClose,
		CanClose:     g.readyToClose && !g.phase.Terminal(),
		Muted:        g.muted,
		Watched:      append([]string(nil), g.watched...),
	}
}
