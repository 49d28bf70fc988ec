package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"erbms.org/internal/auth"
	"erbms.org/internal/ids"
	"erbms.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Entry is an append-only audit record. The table is write-only in the core
// flow; nothing reads it back.
type Entry struct {
	ID        string
	UserID    string
	Action    string
	IPAddress string
	Timestamp time.Time
}

// Store appends immutable audit entries.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
}

// Recorder writes audit events to the structured log and, when a store is
// configured, to the audit table. Table writes are best effort.
type Recorder struct {
	store Store
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// Record emits the event; a failed table insert is logged, never surfaced.
func (r *Recorder) Record(ctx context.Context, action, ip string) {
	userID, _ := auth.UserIDFromContext(ctx)
	_ = LogEvent(ctx, action, map[string]any{"ip": ip})
	if r == nil || r.store == nil {
		return
	}
	entry := &Entry{
		ID:        ids.New(),
		UserID:    userID,
		Action:    action,
		IPAddress: ip,
		Timestamp: time.Now().UTC(),
	}
	if err := r.store.Append(ctx, entry); err != nil {
		obs.LogEvent("warn", "audit append failed", map[string]any{
			"action": action,
			"error":  err.Error(),
		})
	}
}

// LogEvent writes an audit log line enriched with request and user context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if userID, ok := auth.UserIDFromContext(ctx); ok {
		entry["user_id"] = userID
	}
	if len(fields) > 0 {
		copyFields := make(map[string]any, len(fields))
		for k, v := range fields {
			copyFields[k] = v
		}
		entry["fields"] = copyFields
	} else {
		entry["fields"] = map[string]any{}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}
