// Package events はチェックインなどのドメインイベントを外部へ配信する。
package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// DefaultSubject はチェックインイベントの既定のサブジェクト。
const DefaultSubject = "checkin.created"

// CheckInEvent はユーザーがプレイスにチェックインしたことを表すイベント。
type CheckInEvent struct {
	EventID    string    `json:"event_id"`
	UserID     int64     `json:"user_id"`
	PlaceID    string    `json:"place_id"`
	Notified   int       `json:"notified"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewCheckInEvent はイベントIDと発生時刻を付与したCheckInEventを生成する。
func NewCheckInEvent(userID int64, placeID string, notified int) CheckInEvent {
	return CheckInEvent{
		EventID:    uuid.NewString(),
		UserID:     userID,
		PlaceID:    placeID,
		Notified:   notified,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher はチェックインイベントの配信を抽象化する。
type Publisher interface {
	PublishCheckIn(ctx context.Context, event CheckInEvent) error
	Close()
}

// msgPublisher は*nats.Connのうち配信に使うメソッド。
type msgPublisher interface {
	Publish(subj string, data []byte) error
}

// NATSPublisher はNATSのサブジェクトへイベントをJSONで配信する。
type NATSPublisher struct {
	conn    msgPublisher
	closeFn func()
	subject string
	logger  *slog.Logger
}

// ConnectConfig はNATS接続設定。
type ConnectConfig struct {
	URL            string
	Subject        string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectTimeout time.Duration
}

// Connect はNATSサーバーへ接続し、NATSPublisherを返す。
func Connect(cfg ConnectConfig, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = 10
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	options := []nats.Option{
		nats.Name("five"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATSから切断されました", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATSに再接続しました", slog.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS接続を閉じました")
		}),
	}

	nc, err := nats.Connect(cfg.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to NATS: %w", err)
	}

	return newNATSPublisher(nc, nc.Close, cfg.Subject, logger), nil
}

func newNATSPublisher(conn msgPublisher, closeFn func(), subject string, logger *slog.Logger) *NATSPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{
		conn:    conn,
		closeFn: closeFn,
		subject: subject,
		logger:  logger,
	}
}

// PublishCheckIn はイベントをJSONにエンコードして配信する。
func (p *NATSPublisher) PublishCheckIn(ctx context.Context, event CheckInEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal checkin event: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish checkin event: %w", err)
	}

	p.logger.Debug("チェックインイベントを配信しました",
		slog.String("event_id", event.EventID),
		slog.String("subject", p.subject),
	)
	return nil
}

// Close は接続を閉じる。
func (p *NATSPublisher) Close() {
	if p.closeFn != nil {
		p.closeFn()
	}
}

// NopPublisher はイベントを配信しないPublisher。NATS_URL未設定時に使う。
type NopPublisher struct{}

// PublishCheckIn は何もしない。
func (NopPublisher) PublishCheckIn(ctx context.Context, event CheckInEvent) error { return nil }

// Close は何もしない。
func (NopPublisher) Close() {}

var (
	_ Publisher = (*NATSPublisher)(nil)
	_ Publisher = NopPublisher{}
)
