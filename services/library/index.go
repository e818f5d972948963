package library

import (
	"log"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/models"
)

// Fetcher is the slice of the Emby client the index needs.
type Fetcher interface {
	GetLibraryItems(kind models.MediaKind, libraryID string) ([]models.LibraryItem, error)
}

// Index is a process-wide snapshot cache of library contents, keyed by
// (kind, libraryID). Entries never expire; they are replaced on a forced
// refresh and dropped only by Clear. Concurrent misses for the same key
// collapse into a single fetch.
type Index struct {
	mu      sync.RWMutex
	fetcher Fetcher
	group   singleflight.Group
	cache   map[string][]models.LibraryItem
}

// NewIndex creates a library index backed by the given fetcher.
func NewIndex(fetcher Fetcher) *Index {
	return &Index{
		fetcher: fetcher,
		cache:   make(map[string][]models.LibraryItem),
	}
}

func cacheKey(kind models.MediaKind, libraryID string) string {
	return string(kind) + "_" + libraryID
}

// Get returns the cached snapshot for a library, fetching it on a miss or
// when forceRefresh is set. A failed fetch degrades to an empty snapshot
// with a logged warning; it never propagates an error to the caller.
func (x *Index) Get(kind models.MediaKind, libraryID string, forceRefresh bool) []models.LibraryItem {
	key := cacheKey(kind, libraryID)

	if !forceRefresh {
		x.mu.RLock()
		items, ok := x.cache[key]
		x.mu.RUnlock()
		if ok {
			return items
		}
	}

	v, err, _ := x.group.Do(key, func() (interface{}, error) {
		if !forceRefresh {
			// A concurrent caller may have filled the cache while this
			// one waited on the flight.
			x.mu.RLock()
			items, ok := x.cache[key]
			x.mu.RUnlock()
			if ok {
				return items, nil
			}
		}

		items, err := x.fetcher.GetLibraryItems(kind, libraryID)
		if err != nil {
			return nil, err
		}
		log.Printf("[library] loaded %d %s items from library %s", len(items), kind, libraryID)

		x.mu.Lock()
		x.cache[key] = items
		x.mu.Unlock()
		return items, nil
	})
	if err != nil {
		log.Printf("[library] failed to fetch %s items from library %s: %v", kind, libraryID, err)
		return nil
	}
	return v.([]models.LibraryItem)
}

// Clear empties the whole cache.
func (x *Index) Clear() {
	x.mu.Lock()
	x.cache = make(map[string][]models.LibraryItem)
	x.mu.Unlock()
	log.Println("[library] cleared library cache")
}
