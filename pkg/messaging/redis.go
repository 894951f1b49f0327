package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisClient Redis 발행 클라이언트 인터페이스
type RedisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// redisClient Redis 클라이언트 구현체
type redisClient struct {
	client *redis.Client
}

// Connect Redis 연결을 만들고 Ping으로 확인합니다.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("Redis 연결 실패: %w", err)
	}

	return client, nil
}

// NewRedisClient 기존 연결로 발행 클라이언트를 생성합니다.
func NewRedisClient(client *redis.Client) RedisClient {
	return &redisClient{client: client}
}

// Publish 메시지를 JSON으로 직렬화해 발행합니다.
func (r *redisClient) Publish(ctx context.Context, channel string, message interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("메시지 직렬화 실패: %w", err)
	}

	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("메시지 발행 실패 (%s): %w", channel, err)
	}
	return nil
}
