package tracker

import (
	"hash/fnv"
	"sync"
)

// keyedMutex serializes work per system_id within this process. Keys hash
// onto a fixed set of shards, so unrelated devices may share a shard; callers
// must never hold two keys at once.
type keyedMutex struct {
	shards []sync.Mutex
}

func newKeyedMutex(n int) *keyedMutex {
	if n <= 0 {
		n = 64
	}
	return &keyedMutex{shards: make([]sync.Mutex, n)}
}

// Lock locks key's shard and returns the unlock func.
func (k *keyedMutex) Lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	mu := &k.shards[h.Sum32()%uint32(len(k.shards))]
	mu.Lock()
	return mu.Unlock
}
