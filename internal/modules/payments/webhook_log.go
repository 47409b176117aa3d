package payments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ProviderEvent is the audit row for one inbound webhook payload. Repeated
// deliveries of the same payload bump Deliveries instead of adding rows.
type ProviderEvent struct {
	ID          string         `gorm:"type:char(36);primaryKey"`
	Gateway     string         `gorm:"type:varchar(64);not null;uniqueIndex:ux_provider_events_gateway_event,priority:1"`
	EventID     string         `gorm:"type:varchar(128);not null;uniqueIndex:ux_provider_events_gateway_event,priority:2"`
	EventType   string         `gorm:"type:varchar(64);not null"`
	Reference   string         `gorm:"type:varchar(128)"`
	Disposition string         `gorm:"type:varchar(32);not null"`
	PayloadJSON datatypes.JSON `gorm:"type:json;not null"`
	Deliveries  int            `gorm:"not null;default:1"`

	ReceivedAt   time.Time  `gorm:"precision:3;not null"`
	ProcessedAt  *time.Time `gorm:"precision:3"`
	ProcessError *string    `gorm:"type:varchar(255)"`
}

func (ProviderEvent) TableName() string { return "provider_events" }

// EventLog records webhook deliveries for observability. It never affects
// reconciliation: a failing log write is only logged.
type EventLog interface {
	Record(ctx context.Context, e ProviderEvent) error
}

type GormEventLog struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewGormEventLog(db *gorm.DB) *GormEventLog {
	return &GormEventLog{db: db, logger: slog.Default()}
}

func (l *GormEventLog) SetLogger(logger *slog.Logger) {
	l.logger = logger
}

func (l *GormEventLog) Record(ctx context.Context, e ProviderEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now()
	}
	if e.Deliveries == 0 {
		e.Deliveries = 1
	}

	err := l.db.WithContext(ctx).Create(&e).Error
	if err == nil {
		return nil
	}
	if !isDup(err) {
		l.logger.ErrorContext(ctx, "failed to persist provider event", "gateway", e.Gateway, "event_id", e.EventID, "err", err)
		return err
	}

	// dedupe: unique(gateway,event_id)
	l.logger.InfoContext(ctx, "webhook event redelivered", "gateway", e.Gateway, "event_id", e.EventID, "disposition", e.Disposition)
	return l.db.WithContext(ctx).Model(&ProviderEvent{}).
		Where("gateway = ? AND event_id = ?", e.Gateway, e.EventID).
		Updates(map[string]any{
			"deliveries":    gorm.Expr("deliveries + 1"),
			"disposition":   e.Disposition,
			"processed_at":  e.ProcessedAt,
			"process_error": e.ProcessError,
		}).Error
}

// payloadEventID is used when the adapter does not expose a provider event id.
func payloadEventID(body []byte) string {
	sum := sha256.Sum256(body)
	return "sha256:" + hex.EncodeToString(sum[:16])
}

func payloadJSON(w Webhook) datatypes.JSON {
	if json.Valid(w.Body) {
		return datatypes.JSON(w.Body)
	}
	b, err := json.Marshal(w.Fields)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(b)
}

// truncate caps s at n bytes without splitting a rune and drops invalid
// UTF-8, which strict MySQL rejects.
func truncate(s string, n int) string {
	s = strings.ToValidUTF8(s, "")
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
