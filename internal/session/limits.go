package session

import "time"

// Named constants mirrored from the synchronization spec. Kept together in
// one file in the teacher's own limits.go style (named constants grouped by
// concern rather than scattered across call sites).
const (
	// TTL is how long a session survives with no last_updated change.
	TTL = time.Hour

	// PositionHistorySize bounds the smoothing FIFO for position_ms.
	PositionHistorySize = 5

	// DriftAvgWindow bounds the per-client drift sample ring.
	DriftAvgWindow = 8
	// DriftManualHistorySize bounds the per-client manual-resync history.
	DriftManualHistorySize = 10
	// DriftWindow is the max age of a drift sample before it is swept.
	DriftWindow = 10 * time.Second
	// DriftThreshold is the average-drift cutoff for the high-drift tick.
	DriftThreshold = 0.08

	// ControllerRequestTTL is how long a pending controller request lives.
	ControllerRequestTTL = 5 * time.Minute

	// ChatLimit is the max chat messages per connection per ChatWindow.
	ChatLimit = 5
	// ChatWindow is the sliding window chat rate limiting is measured over.
	ChatWindow = 3000 * time.Millisecond

	// MaxTitleLen bounds Track.Title after HTML-stripping.
	MaxTitleLen = 128
	// MaxMessageLen bounds ChatMessage.Message after sanitization.
	MaxMessageLen = 500
	// MaxDisplayNameLen bounds Member.DisplayName after sanitization.
	MaxDisplayNameLen = 64

	// MaxMessages is a practical, non-contractual per-session chat cap.
	MaxMessages = 5000

	// UploadPrefix is the user-upload namespace checked by queue removal.
	UploadPrefix = "/audio/uploads/"
	// SamplePrefix is excluded from the user-upload namespace.
	SamplePrefix = "/audio/uploads/samples/"
)
