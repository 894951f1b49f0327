package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrLockHeld 다른 프로세스가 이미 락을 보유하고 있습니다.
var ErrLockHeld = errors.New("lock is held by another process")

// Locker Redis 기반 권고(advisory) 락
type Locker struct {
	client *redis.Client
}

// NewLocker 락 클라이언트를 생성합니다.
func NewLocker(client *redis.Client) *Locker {
	return &Locker{client: client}
}

// TryLock SetNX로 락을 한 번 시도합니다. 성공하면 해제에 필요한 토큰을 반환합니다.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("락 획득 실패 (%s): %w", key, err)
	}
	if !ok {
		return "", ErrLockHeld
	}
	return token, nil
}

// 토큰이 일치할 때만 삭제합니다
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

// Unlock 자신이 획득한 락만 해제합니다.
func (l *Locker) Unlock(ctx context.Context, key, token string) error {
	if err := unlockScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("락 해제 실패 (%s): %w", key, err)
	}
	return nil
}
