package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bmr-suspension/storefront-backend/services/checkout-service/models"
)

type redisPendingOrderRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPendingOrderRepository stores payloads as keys with a TTL. The
// claim is a separate SET NX key so it expires on its own if the holder
// dies.
func NewRedisPendingOrderRepository(client *redis.Client, ttl time.Duration) PendingOrderRepository {
	return &redisPendingOrderRepository{client: client, ttl: ttl}
}

func (r *redisPendingOrderRepository) key(token string) string {
	return fmt.Sprintf("pending_order:%s", token)
}

func (r *redisPendingOrderRepository) claimKey(token string) string {
	return fmt.Sprintf("pending_order:%s:claim", token)
}

func (r *redisPendingOrderRepository) Put(ctx context.Context, token string, payload *models.CheckoutPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal pending order: %w", err)
	}
	if err := r.client.Set(ctx, r.key(token), data, r.ttl).Err(); err != nil {
		return err
	}
	return r.client.Del(ctx, r.claimKey(token)).Err()
}

func (r *redisPendingOrderRepository) Get(ctx context.Context, token string) (*models.CheckoutPayload, error) {
	data, err := r.client.Get(ctx, r.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrPendingOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodePayload(data)
}

func (r *redisPendingOrderRepository) Claim(ctx context.Context, token string, lease time.Duration) (*models.CheckoutPayload, error) {
	ok, err := r.client.SetNX(ctx, r.claimKey(token), time.Now().UTC().Format(time.RFC3339Nano), lease).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPendingOrderNotFound
	}

	payload, err := r.Get(ctx, token)
	if err != nil {
		_ = r.client.Del(ctx, r.claimKey(token)).Err()
		return nil, err
	}
	return payload, nil
}

func (r *redisPendingOrderRepository) Release(ctx context.Context, token string) error {
	return r.client.Del(ctx, r.claimKey(token)).Err()
}

func (r *redisPendingOrderRepository) Delete(ctx context.Context, token string) error {
	return r.client.Del(ctx, r.key(token), r.claimKey(token)).Err()
}

func (r *redisPendingOrderRepository) PurgeExpired(ctx context.Context) (int64, error) {
	return 0, nil
}
