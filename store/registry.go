package store

import (
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"finedu/content"
)

// Closer is the part of a Store the registry needs.
type Closer interface {
	Close()
}

// Registry keeps mounted stores keyed by kind and filter. The least recently
// used store is unmounted once the limit is reached.
type Registry struct {
	mu     sync.Mutex
	mounts *lru.Cache[string, Closer]
}

func NewRegistry(size int) (*Registry, error) {
	if size <= 0 {
		size = 64
	}
	cache, err := lru.NewWithEvict[string, Closer](size, func(_ string, c Closer) { c.Close() })
	if err != nil {
		return nil, err
	}
	return &Registry{mounts: cache}, nil
}

func mountKey(kind content.Kind, f content.Filter) string {
	return string(kind) + "?" + f.Key()
}

// Mount returns the store for kind and f, creating it with build on first use.
func Mount[T content.Resource, I any](r *Registry, kind content.Kind, f content.Filter, build func(content.Filter) *Store[T, I]) *Store[T, I] {
	key := mountKey(kind, f)

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.mounts.Get(key); ok {
		if s, ok := c.(*Store[T, I]); ok {
			return s
		}
	}
	s := build(f)
	r.mounts.Add(key, s)
	return s
}

// Invalidate unmounts every store of kind, except the views in keep, so the
// next Mount reads fresh data.
func (r *Registry) Invalidate(kind content.Kind, keep ...content.Filter) int {
	prefix := string(kind) + "?"
	kept := make(map[string]bool, len(keep))
	for _, f := range keep {
		kept[mountKey(kind, f)] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, key := range r.mounts.Keys() {
		if strings.HasPrefix(key, prefix) && !kept[key] {
			r.mounts.Remove(key)
			n++
		}
	}
	return n
}

// Len is the number of mounted stores.
func (r *Registry) Len() int { return r.mounts.Len() }

// Purge unmounts every store. Used when the data service endpoint changes.
func (r *Registry) Purge() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mounts.Purge()
}
