package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rentfolio/notification-service/internal/models"
)

const (
	StatusProcessing = "processing"
	StatusDelivered  = "delivered"
	StatusSkipped    = "skipped"
	StatusFailed     = "failed"
)

// DeliveryRecord is the persisted outcome of one delivery request. One row
// per request id, updated in place as attempts progress.
type DeliveryRecord struct {
	RequestID    string `gorm:"primaryKey"`
	TenantID     int64
	Channel      string
	Recipient    string
	Status       string
	Attempts     int
	FailureClass string
	Detail       string
	UpdatedAt    time.Time
}

// DeliveryStore persists delivery outcomes for operational triage and the
// suite's dashboard.
type DeliveryStore struct {
	db        *gorm.DB
	tableName string
}

func NewDeliveryStore(db *gorm.DB, tableName string) (*DeliveryStore, error) {
	if tableName == "" {
		tableName = "notification_deliveries"
	}
	if err := db.Table(tableName).AutoMigrate(&DeliveryRecord{}); err != nil {
		return nil, err
	}
	return &DeliveryStore{db: db, tableName: tableName}, nil
}

// Upsert writes the record, replacing the mutable columns on conflict.
func (s *DeliveryStore) Upsert(ctx context.Context, record DeliveryRecord) error {
	record.UpdatedAt = time.Now()
	return s.db.WithContext(ctx).Table(s.tableName).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "request_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "attempts", "failure_class", "detail", "updated_at"}),
		}).Create(&record).Error
}

// Get loads the record for a request id.
func (s *DeliveryStore) Get(ctx context.Context, requestID string) (*DeliveryRecord, error) {
	var record DeliveryRecord
	err := s.db.WithContext(ctx).Table(s.tableName).
		Where("request_id = ?", requestID).
		Take(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func recordFor(req *models.DeliveryRequest, status string, attempts int) DeliveryRecord {
	return DeliveryRecord{
		RequestID: req.ID,
		TenantID:  req.TenantID,
		Channel:   string(req.Channel),
		Recipient: req.Recipient,
		Status:    status,
		Attempts:  attempts,
	}
}
