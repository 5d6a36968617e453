package domain

import "errors"

// Error codes returned to API callers.
const (
	CodeNoVideosAvailable = "NO_VIDEOS_AVAILABLE"
	CodeDatabaseError     = "DATABASE_ERROR"
)

var (
	// ErrNoVideosAvailable means no sponsored video survived filtering. It is an expected outcome.
	ErrNoVideosAvailable = errors.New("no sponsored videos available")
	// ErrCatalogUnavailable means a catalog query failed while building a playlist.
	ErrCatalogUnavailable = errors.New("catalog query failed")
	// ErrUnknownEventType is returned for trigger events other than daily_gift, game_end and refill.
	ErrUnknownEventType = errors.New("unknown reward event type")
	// ErrSessionNotFound is returned when a reward session id is unknown or already purged.
	ErrSessionNotFound = errors.New("reward session not found")
	// ErrSessionForbidden is returned when a user reports completion for someone else's session.
	ErrSessionForbidden = errors.New("reward session belongs to another user")
	// ErrGateNotReady is returned when a close is attempted before the required watch time elapsed.
	ErrGateNotReady = errors.New("playback gate not ready to close")
	// ErrNothingWatched is returned when a completion report names none of the session's videos.
	ErrNothingWatched = errors.New("no served video reported as watched")
	// ErrEmptyPlaylist is returned when a playback gate is built without videos.
	ErrEmptyPlaylist = errors.New("playlist is empty")
	// ErrWalletUnavailable wraps transient failures of the external wallet service.
	ErrWalletUnavailable = errors.New("wallet service unavailable")
	// ErrCreditRejected means the wallet refused the credit; retrying the same request will not help.
	ErrCreditRejected = errors.New("wallet rejected credit")
)
