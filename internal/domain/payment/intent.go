// internal/domain/payment/intent.go
package payment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/your-org/storefront-backend/internal/domain/checkout"
	redisdb "github.com/your-org/storefront-backend/internal/infrastructure/database/redis"
)

var ErrIntentNotFound = errors.New("payment intent not found or expired")

const (
	intentKeyPrefix = "payment:intent:"
	lockKeyPrefix   = "payment:lock:"
)

// Intent is what the customer agreed to pay for. It lives only in redis
// until the payment is verified; no order exists yet.
type Intent struct {
	GatewayOrderID string           `json:"gateway_order_id"`
	OwnerID        uuid.UUID        `json:"owner_id"`
	Amount         decimal.Decimal  `json:"amount"`
	AmountMinor    int64            `json:"amount_minor"`
	Currency       string           `json:"currency"`
	Receipt        string           `json:"receipt"`
	Details        checkout.Details `json:"details"`
	CreatedAt      time.Time        `json:"created_at"`
}

// IntentStore keeps intents and the per gateway order verification lock
type IntentStore interface {
	Save(ctx context.Context, intent *Intent, ttl time.Duration) error
	Get(ctx context.Context, gatewayOrderID string) (*Intent, error)
	Delete(ctx context.Context, gatewayOrderID string) error
	Lock(ctx context.Context, gatewayOrderID string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, gatewayOrderID string) error
}

// RedisIntentStore keeps intents in redis
type RedisIntentStore struct {
	client *redisdb.Client
}

// NewRedisIntentStore creates a new intent store
func NewRedisIntentStore(client *redisdb.Client) *RedisIntentStore {
	return &RedisIntentStore{client: client}
}

func (s *RedisIntentStore) Save(ctx context.Context, intent *Intent, ttl time.Duration) error {
	return s.client.SetJSON(ctx, intentKeyPrefix+intent.GatewayOrderID, intent, ttl)
}

func (s *RedisIntentStore) Get(ctx context.Context, gatewayOrderID string) (*Intent, error) {
	var intent Intent
	if err := s.client.GetJSON(ctx, intentKeyPrefix+gatewayOrderID, &intent); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrIntentNotFound
		}
		return nil, err
	}
	return &intent, nil
}

func (s *RedisIntentStore) Delete(ctx context.Context, gatewayOrderID string) error {
	return s.client.Redis.Del(ctx, intentKeyPrefix+gatewayOrderID).Err()
}

func (s *RedisIntentStore) Lock(ctx context.Context, gatewayOrderID string, ttl time.Duration) (bool, error) {
	return s.client.Lock(ctx, lockKeyPrefix+gatewayOrderID, ttl)
}

func (s *RedisIntentStore) Unlock(ctx context.Context, gatewayOrderID string) error {
	return s.client.Unlock(ctx, lockKeyPrefix+gatewayOrderID)
}
