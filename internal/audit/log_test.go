package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"erbms.org/internal/auth"
	"erbms.org/internal/obs"
)

type memStore struct {
	entries []*Entry
	fail    bool
}

func (m *memStore) Append(_ context.Context, entry *Entry) error {
	if m.fail {
		return errors.New("append failed")
	}
	m.entries = append(m.entries, entry)
	return nil
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	obs.Logger().SetOutput(&buf)
	t.Cleanup(func() { obs.Logger().SetOutput(os.Stdout) })
	return &buf
}

func TestRecordAppendsEntryWithCallerID(t *testing.T) {
	captureLog(t)
	store := &memStore{}
	rec := NewRecorder(store)

	ctx := auth.ContextWithUser(context.Background(), "uid-1", []string{"Admin"})
	rec.Record(ctx, "users.delete", "10.0.0.1")

	if len(store.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(store.entries))
	}
	entry := store.entries[0]
	if entry.UserID != "uid-1" || entry.Action != "users.delete" || entry.IPAddress != "10.0.0.1" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.ID == "" || entry.Timestamp.IsZero() {
		t.Fatalf("entry must carry id and timestamp: %+v", entry)
	}
}

func TestRecordSwallowsStoreFailure(t *testing.T) {
	buf := captureLog(t)
	rec := NewRecorder(&memStore{fail: true})

	// Must not panic or surface the error.
	rec.Record(context.Background(), "auth.login", "")

	if !bytes.Contains(buf.Bytes(), []byte("audit append failed")) {
		t.Fatal("expected a warning line for the failed append")
	}
}

func TestRecordWithoutStore(t *testing.T) {
	captureLog(t)
	NewRecorder(nil).Record(context.Background(), "auth.login", "")
}

func TestLogEventCarriesRequestContext(t *testing.T) {
	buf := captureLog(t)

	ctx := WithRequestID(context.Background(), "req-42")
	ctx = auth.ContextWithUser(ctx, "uid-9", nil)
	if err := LogEvent(ctx, "auth.refresh", map[string]any{"ip": "127.0.0.1"}); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	if line["event"] != "auth.refresh" || line["request_id"] != "req-42" || line["user_id"] != "uid-9" {
		t.Fatalf("unexpected line: %v", line)
	}
}

func TestLogEventRequiresName(t *testing.T) {
	captureLog(t)
	if err := LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected an error for a blank event name")
	}
}

func TestWithRequestIDIgnoresBlank(t *testing.T) {
	ctx := context.Background()
	if got := WithRequestID(ctx, "   "); got != ctx {
		t.Fatal("blank request id must not allocate a new context")
	}
}
