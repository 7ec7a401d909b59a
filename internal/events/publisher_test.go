package events

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

type recordingConn struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (c *recordingConn) Publish(subj string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.subjects = append(c.subjects, subj)
	c.payloads = append(c.payloads, data)
	return nil
}

func newTestLogger() *slog.Logger {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, nil))
}

func TestNewCheckInEvent(t *testing.T) {
	e := NewCheckInEvent(7, "cafe", 3)

	if _, err := uuid.Parse(e.EventID); err != nil {
		t.Errorf("EventIDはUUIDであるべきです: %q", e.EventID)
	}
	if e.UserID != 7 || e.PlaceID != "cafe" || e.Notified != 3 {
		t.Errorf("event = %+v", e)
	}
	if e.OccurredAt.IsZero() {
		t.Error("OccurredAtが設定されていません")
	}
	if other := NewCheckInEvent(7, "cafe", 3); other.EventID == e.EventID {
		t.Error("EventIDはイベントごとに一意であるべきです")
	}
}

func TestNATSPublisher_PublishCheckIn(t *testing.T) {
	conn := &recordingConn{}
	p := newNATSPublisher(conn, nil, "", newTestLogger())

	event := NewCheckInEvent(7, "cafe", 2)
	if err := p.PublishCheckIn(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(conn.subjects) != 1 || conn.subjects[0] != DefaultSubject {
		t.Fatalf("subjects = %v, want [%s]", conn.subjects, DefaultSubject)
	}
	var got map[string]any
	if err := json.Unmarshal(conn.payloads[0], &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got["event_id"] != event.EventID || got["place_id"] != "cafe" {
		t.Errorf("payload = %v", got)
	}
	if got["user_id"] != float64(7) || got["notified"] != float64(2) {
		t.Errorf("payload = %v", got)
	}
}

func TestNATSPublisher_CustomSubject(t *testing.T) {
	conn := &recordingConn{}
	p := newNATSPublisher(conn, nil, "five.checkins", newTestLogger())

	if err := p.PublishCheckIn(context.Background(), NewCheckInEvent(1, "p", 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conn.subjects[0] != "five.checkins" {
		t.Errorf("subject = %q", conn.subjects[0])
	}
}

func TestNATSPublisher_PublishError(t *testing.T) {
	cause := errors.New("nats: connection closed")
	p := newNATSPublisher(&recordingConn{err: cause}, nil, "", newTestLogger())

	err := p.PublishCheckIn(context.Background(), NewCheckInEvent(1, "p", 0))
	if !errors.Is(err, cause) {
		t.Errorf("err = %v, want wrapping %v", err, cause)
	}
}

func TestNATSPublisher_CanceledContext(t *testing.T) {
	conn := &recordingConn{}
	p := newNATSPublisher(conn, nil, "", newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.PublishCheckIn(ctx, NewCheckInEvent(1, "p", 0)); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if len(conn.subjects) != 0 {
		t.Error("キャンセル済みのコンテキストでは配信しないべきです")
	}
}

func TestNATSPublisher_Close(t *testing.T) {
	closed := false
	p := newNATSPublisher(&recordingConn{}, func() { closed = true }, "", newTestLogger())
	p.Close()
	if !closed {
		t.Error("Closeで接続を閉じるべきです")
	}
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	if err := p.PublishCheckIn(context.Background(), NewCheckInEvent(1, "p", 0)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	p.Close()
}
