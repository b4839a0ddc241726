package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/rentfolio/notification-service/internal/models"
)

// ErrNotConfigured is returned when a tenant has no row for the channel.
var ErrNotConfigured = errors.New("settings: channel not configured for tenant")

// channelRecord mirrors the suite's tenant_channel_settings table. Config is
// the channel's settings document with credential fields already encrypted by
// the settings API at write time.
type channelRecord struct {
	TenantID  int64  `gorm:"primaryKey"`
	Channel   string `gorm:"primaryKey"`
	Config    []byte
	UpdatedAt time.Time
}

// Store is the gorm-backed, read-only Provider implementation. Every call
// reads the row fresh; no caching, so credential rotation between attempts is
// picked up on the next read.
type Store struct {
	db        *gorm.DB
	tableName string
}

func NewStore(db *gorm.DB, tableName string) *Store {
	if tableName == "" {
		tableName = "tenant_channel_settings"
	}
	return &Store{db: db, tableName: tableName}
}

func (s *Store) EmailSettings(ctx context.Context, tenantID int64) (*EmailSettings, error) {
	var cfg EmailSettings
	if err := s.load(ctx, tenantID, models.ChannelEmail, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *Store) SMSSettings(ctx context.Context, tenantID int64) (*SMSSettings, error) {
	var cfg SMSSettings
	if err := s.load(ctx, tenantID, models.ChannelSMS, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *Store) TelegramSettings(ctx context.Context, tenantID int64) (*TelegramSettings, error) {
	var cfg TelegramSettings
	if err := s.load(ctx, tenantID, models.ChannelTelegram, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *Store) load(ctx context.Context, tenantID int64, channel models.Channel, out any) error {
	var record channelRecord
	err := s.db.WithContext(ctx).Table(s.tableName).
		Where("tenant_id = ? AND channel = ?", tenantID, string(channel)).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: tenant %d channel %s", ErrNotConfigured, tenantID, channel)
	}
	if err != nil {
		return fmt.Errorf("settings: loading tenant %d channel %s: %w", tenantID, channel, err)
	}
	if err := json.Unmarshal(record.Config, out); err != nil {
		return fmt.Errorf("settings: decoding tenant %d channel %s config: %w", tenantID, channel, err)
	}
	return nil
}
