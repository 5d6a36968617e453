package reward

import (
	"context"
	"sync/atomic"

	"dingleup-reward-service/internal/domain"
)

// CompleteFunc reports watched ids for a session and credits the reward.
type CompleteFunc func(ctx context.Context, watchedVideoIDs []string) (domain.CompletionResult, error)

// Reconciler is the exactly-once bridge between a playback gate's reward hook
// and the completion call. A second Report, e.g. from a double tap, is a
// silent no-op.
type Reconciler struct {
	complete CompleteFunc
	notify   func(domain.CompletionResult, error)
	watched  func([]string)

	reported atomic.Bool
}

// NewReconciler builds a reconciler. notify receives the outcome so the caller
// can show a confirmation; watched receives the id set for impression
// analytics. Both may be nil.
func NewReconciler(complete CompleteFunc, notify func(domain.CompletionResult, error), watched func([]string)) *Reconciler {
	return &Reconciler{complete: complete, notify: notify, watched: watched}
}

// Report runs the completion once. It returns false when an earlier call
// already did.
func (r *Reconciler) Report(ctx context.Context, watchedVideoIDs []string) bool {
	if !r.reported.CompareAndSwap(false, true) {
		return false
	}
	res, err := r.complete(ctx, watchedVideoIDs)
	if r.notify != nil {
		r.notify(res, err)
	}
	if r.watched != nil {
		r.watched(append([]string(nil), watchedVideoIDs...))
	}
	return true
}

// Reported reports whether Report already ran.
func (r *Reconciler) Reported() bool {
	return r.reported.Load()
}
