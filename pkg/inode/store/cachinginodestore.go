package store

import (
	"fmt"

	"github.com/sirupsen/logrus"
	. "github.com/weberc2/ext2fs/pkg/types"
)

// CachingInodeStore fronts another store with an LRU. Writes go straight
// through to the backend, so an evicted entry never needs flushing.
type CachingInodeStore struct {
	backend InodeStore
	cache   *Cache
}

func NewCachingInodeStore(
	backend InodeStore,
	cacheCapacity int,
) *CachingInodeStore {
	return &CachingInodeStore{
		backend: backend,
		cache:   NewCache(cacheCapacity),
	}
}

func (store *CachingInodeStore) Put(inode *Inode) error {
	if err := store.backend.Put(inode); err != nil {
		var removed Inode
		store.cache.Remove(inode.Ino, &removed)
		return fmt.Errorf("storing inode `%d`: %w", inode.Ino, err)
	}
	store.push(inode)
	return nil
}

func (store *CachingInodeStore) Get(ino Ino, output *Inode) error {
	if store.cache.Get(ino, output) {
		return nil
	}

	if err := store.backend.Get(ino, output); err != nil {
		return fmt.Errorf(
			"fetching inode `%d`: cache miss; checking backend store: %w",
			ino,
			err,
		)
	}
	store.push(output)
	return nil
}

// Forget drops `ino` from the cache without touching the backend.
func (store *CachingInodeStore) Forget(ino Ino) {
	var removed Inode
	store.cache.Remove(ino, &removed)
}

func (store *CachingInodeStore) push(inode *Inode) {
	var evicted Inode
	if store.cache.Push(inode, &evicted) {
		logrus.WithField("ino", evicted.Ino).Trace("evicted cached inode")
	}
}
