package dispatch

import (
	"context"

	"github.com/rentfolio/notification-service/internal/models"
)

// Reporter records delivery lifecycle transitions. Implementations must not
// fail the delivery: reporting errors are theirs to log and swallow.
type Reporter interface {
	Processing(ctx context.Context, req *models.DeliveryRequest, attempt int)
	Delivered(ctx context.Context, req *models.DeliveryRequest, provider string, attempt int)
	Skipped(ctx context.Context, req *models.DeliveryRequest)
	Failed(ctx context.Context, req *models.DeliveryRequest, provider string, attempt int, class models.FailureClass, cause string)
}

// NopReporter discards every report.
type NopReporter struct{}

func (NopReporter) Processing(context.Context, *models.DeliveryRequest, int)        {}
func (NopReporter) Delivered(context.Context, *models.DeliveryRequest, string, int) {}
func (NopReporter) Skipped(context.Context, *models.DeliveryRequest)                {}
func (NopReporter) Failed(context.Context, *models.DeliveryRequest, string, int, models.FailureClass, string) {
}
