package keylock

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const defaultShards = 64

// ShardedLocker is an in-process Locker. Keys are spread over shards so that
// bookkeeping for unrelated keys does not contend on one mutex.
type ShardedLocker struct {
	shards []*lockShard
}

type lockShard struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewShardedLocker creates an in-process locker. shards <= 0 uses the default.
func NewShardedLocker(shards int) *ShardedLocker {
	if shards <= 0 {
		shards = defaultShards
	}
	l := &ShardedLocker{shards: make([]*lockShard, shards)}
	for i := range l.shards {
		l.shards[i] = &lockShard{slots: make(map[string]*slot)}
	}
	return l
}

// Lock blocks until the key is free or ctx is done.
func (l *ShardedLocker) Lock(ctx context.Context, key string) (func(), error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	if ctx == nil {
		ctx = context.Background()
	}
	shard := l.shard(key)
	s := shard.acquire(key)

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		shard.release(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			shard.release(key, s)
		})
	}, nil
}

func (l *ShardedLocker) shard(key string) *lockShard {
	return l.shards[xxhash.Sum64String(key)%uint64(len(l.shards))]
}

func (s *lockShard) acquire(key string) *slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[key]
	if !ok {
		sl = &slot{ch: make(chan struct{}, 1)}
		s.slots[key] = sl
	}
	sl.refs++
	return sl
}

func (s *lockShard) release(key string, sl *slot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl.refs--
	if sl.refs == 0 {
		delete(s.slots, key)
	}
}
