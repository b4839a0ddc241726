package repository

import (
	"context"
	"log/slog"

	"github.com/rentfolio/notification-service/internal/models"
)

// StoreReporter implements dispatch.Reporter on top of the delivery store.
// Store errors are logged and swallowed: reporting must never alter the
// outcome of a delivery.
type StoreReporter struct {
	store       *DeliveryStore
	suppression *SuppressionStore
	logger      *slog.Logger
}

// NewStoreReporter builds a reporter backed by the delivery store. The
// suppression store is optional; when present, recipients that are rejected
// by the remote provider on their final attempt are suppressed so new
// deliveries to them are held back at enqueue time.
func NewStoreReporter(store *DeliveryStore, suppression *SuppressionStore, logger *slog.Logger) *StoreReporter {
	return &StoreReporter{store: store, suppression: suppression, logger: logger}
}

func (r *StoreReporter) Processing(ctx context.Context, req *models.DeliveryRequest, attempt int) {
	r.write(ctx, recordFor(req, StatusProcessing, attempt))
}

func (r *StoreReporter) Delivered(ctx context.Context, req *models.DeliveryRequest, provider string, attempt int) {
	record := recordFor(req, StatusDelivered, attempt)
	record.Detail = provider
	r.write(ctx, record)
}

func (r *StoreReporter) Skipped(ctx context.Context, req *models.DeliveryRequest) {
	r.write(ctx, recordFor(req, StatusSkipped, 0))
}

func (r *StoreReporter) Failed(ctx context.Context, req *models.DeliveryRequest, provider string, attempt int, class models.FailureClass, cause string) {
	record := recordFor(req, StatusFailed, attempt)
	record.FailureClass = string(class)
	record.Detail = cause
	r.write(ctx, record)

	if r.suppression != nil && class == models.FailureRemoteRejected {
		if err := r.suppression.Suppress(ctx, req.TenantID, req.Channel, req.Recipient); err != nil {
			r.logger.Warn("failed to suppress rejected recipient",
				slog.String("request_id", req.ID),
				slog.Any("error", err),
			)
		}
	}
}

func (r *StoreReporter) write(ctx context.Context, record DeliveryRecord) {
	if err := r.store.Upsert(ctx, record); err != nil {
		r.logger.Error("failed to record delivery status",
			slog.String("request_id", record.RequestID),
			slog.String("status", record.Status),
			slog.Any("error", err),
		)
	}
}
