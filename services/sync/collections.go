package sync

import (
	"fmt"
	"log"
	"time"

	"github.com/avast/retry-go/v4"
)

// SyncCollection makes sure a collection with the given name exists and
// contains every item id. Existing collections get idempotent per-item
// adds; missing ones are created with all members in one call, falling
// back to seeding with the first item when the bulk endpoint refuses.
// Individual add failures are logged and tolerated.
func (e *Engine) SyncCollection(name string, itemIDs []string) (string, error) {
	if len(itemIDs) == 0 {
		return "", fmt.Errorf("no items to place in collection %q", name)
	}

	collectionID, err := e.target.FindCollectionByName(name)
	if err != nil {
		return "", fmt.Errorf("find collection %q: %w", name, err)
	}

	if collectionID != "" {
		e.addAll(collectionID, name, itemIDs)
		return collectionID, nil
	}

	log.Printf("[sync] collection %q not found, creating with %d items", name, len(itemIDs))
	collectionID, createErr := e.target.CreateCollectionWithItems(name, itemIDs)
	if createErr == nil {
		if collectionID != "" {
			return collectionID, nil
		}
		// Creation succeeded but the response carried no id.
		return e.confirmCollection(name)
	}

	log.Printf("[sync] bulk collection creation failed, seeding with first item: %v", createErr)
	if err := e.target.CreateCollectionForItem(itemIDs[0], name); err != nil {
		return "", fmt.Errorf("create collection %q: %w", name, err)
	}

	collectionID, err = e.confirmCollection(name)
	if err != nil {
		return "", err
	}

	e.addAll(collectionID, name, itemIDs[1:])
	return collectionID, nil
}

// PlaceInCollection puts a single item into the named collection, creating
// the collection when necessary. Unlike the bulk path, a failed add is
// reported to the caller rather than logged and tolerated.
func (e *Engine) PlaceInCollection(embyID, collectionName, libraryID string) error {
	collectionID, err := e.target.FindCollectionByName(collectionName)
	if err != nil {
		return fmt.Errorf("find collection %q: %w", collectionName, err)
	}
	if collectionID == "" {
		// Creation seeds the collection with the item itself.
		_, err := e.SyncCollection(collectionName, []string{embyID})
		return err
	}
	if err := e.target.AddToCollection(embyID, collectionID); err != nil {
		return fmt.Errorf("add item %s to collection %q: %w", embyID, collectionName, err)
	}
	return nil
}

// confirmCollection re-searches for a just-created collection until the
// server starts returning it.
func (e *Engine) confirmCollection(name string) (string, error) {
	return retry.DoWithData(
		func() (string, error) {
			id, err := e.target.FindCollectionByName(name)
			if err != nil {
				return "", err
			}
			if id == "" {
				return "", fmt.Errorf("collection %q not visible yet", name)
			}
			return id, nil
		},
		retry.Attempts(5),
		retry.Delay(time.Second),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
}

func (e *Engine) addAll(collectionID, name string, itemIDs []string) {
	failed := 0
	for _, itemID := range itemIDs {
		if err := e.target.AddToCollection(itemID, collectionID); err != nil {
			log.Printf("[sync] failed to add item %s to collection %q: %v", itemID, name, err)
			failed++
		}
	}
	if failed > 0 {
		log.Printf("[sync] %d of %d items could not be added to collection %q", failed, len(itemIDs), name)
	}
}
