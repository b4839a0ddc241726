package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/rentfolio/notification-service/internal/models"
)

// SuppressionStore remembers recipients whose deliveries terminally failed
// with a remote rejection, so the enqueue boundary can stop feeding the queue
// messages that will burn a full backoff window before failing again.
// Entries expire: a recipient may become valid again (chat re-opened, number
// ported back).
type SuppressionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSuppressionStore(client *redis.Client, ttl time.Duration) *SuppressionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SuppressionStore{client: client, ttl: ttl}
}

func (s *SuppressionStore) Close() error {
	return s.client.Close()
}

func suppressionKey(tenantID int64, channel models.Channel, recipient string) string {
	return fmt.Sprintf("notify:suppressed:%d:%s:%s", tenantID, channel, recipient)
}

// Suppress marks the recipient for the tenant and channel.
func (s *SuppressionStore) Suppress(ctx context.Context, tenantID int64, channel models.Channel, recipient string) error {
	return s.client.SetEX(ctx, suppressionKey(tenantID, channel, recipient), "1", s.ttl).Err()
}

// IsSuppressed reports whether the recipient is currently marked.
func (s *SuppressionStore) IsSuppressed(ctx context.Context, tenantID int64, channel models.Channel, recipient string) (bool, error) {
	exists, err := s.client.Exists(ctx, suppressionKey(tenantID, channel, recipient)).Result()
	if err != nil {
		return false, err
	}
	return exists == 1, nil
}
