package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	redisv9 "github.com/redis/go-redis/v9"
)

const defaultIndexLockTTL = 10 * time.Minute

// releaseScript deletes the key only if it still holds our token, so a lock
// that expired and was taken by another worker is left alone.
var releaseScript = redisv9.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// IndexLock gives one worker at a time the right to index a document.
type IndexLock struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewIndexLock(client *redisv9.Client, ttl time.Duration) *IndexLock {
	if ttl <= 0 {
		ttl = defaultIndexLockTTL
	}
	return &IndexLock{client: client, ttl: ttl}
}

// Acquire returns acquired=false when another holder has the document. The
// release func must be called when indexing ends.
func (l *IndexLock) Acquire(ctx context.Context, documentID string) (release func(context.Context) error, acquired bool, err error) {
	key := l.key(documentID)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis acquire index lock failed: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release = func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("redis release index lock failed: %w", err)
		}
		return nil
	}
	return release, true, nil
}

func (l *IndexLock) key(documentID string) string {
	return fmt.Sprintf("index:lock:%s", documentID)
}
