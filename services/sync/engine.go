package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/config"
	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/models"
	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/services/emby"
	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/services/library"
	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/services/matcher"
	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/services/registry"
)

const defaultWorkers = 10

var ErrSyncInProgress = errors.New("a sync is already running")

// TargetClient is the slice of the Emby client the engine needs.
type TargetClient interface {
	GetSystemInfo() (*emby.SystemInfo, error)
	GetItem(itemID string) (*models.LibraryItem, error)
	FindCollectionByName(name string) (string, error)
	CreateCollectionWithItems(name string, itemIDs []string) (string, error)
	CreateCollectionForItem(itemID, name string) error
	AddToCollection(itemID, collectionID string) error
}

// ListFetcher fetches the entries of one remote list.
type ListFetcher interface {
	FetchEntries(ctx context.Context, listID string, kind models.MediaKind) ([]models.ListEntry, error)
}

// MappingStore is the resolution fast path and its write-back.
type MappingStore interface {
	Lookup(kind models.MediaKind, traktID string) string
	Store(kind models.MediaKind, traktID, embyID, title string)
}

// UnresolvedRegistry receives entries that failed every resolution step.
type UnresolvedRegistry interface {
	AddUnresolved(entry models.ListEntry, kind models.MediaKind, collectionName, libraryID, reason string) (registry.AddOutcome, error)
}

// ListResult summarizes one list's sync.
type ListResult struct {
	ListID         string `json:"list_id"`
	CollectionName string `json:"collection_name"`
	Total          int    `json:"total"`
	Matched        int    `json:"matched"`
	Missing        int    `json:"missing"`
	CollectionID   string `json:"collection_id,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Status is a snapshot of the engine's state for the API.
type Status struct {
	Running     bool         `json:"running"`
	LastRunAt   time.Time    `json:"last_run_at,omitempty"`
	LastResults []ListResult `json:"last_results,omitempty"`
	LastError   string       `json:"last_error,omitempty"`
}

// Engine reconciles configured Trakt lists against Emby collections.
type Engine struct {
	mu      sync.Mutex
	running bool
	status  Status

	target   TargetClient
	index    *library.Index
	lists    ListFetcher
	mappings MappingStore
	registry UnresolvedRegistry
	workers  int
}

// NewEngine wires the reconciliation engine.
func NewEngine(target TargetClient, index *library.Index, lists ListFetcher, mappings MappingStore, reg UnresolvedRegistry) *Engine {
	return &Engine{
		target:   target,
		index:    index,
		lists:    lists,
		mappings: mappings,
		registry: reg,
		workers:  defaultWorkers,
	}
}

// Status returns a snapshot of the engine state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.status
	st.Running = e.running
	return st
}

// Running reports whether a sync is currently in flight.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) tryStart() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return false
	}
	e.running = true
	return true
}

func (e *Engine) finish(results []ListResult, runErr error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = false
	e.status.LastRunAt = time.Now().UTC()
	e.status.LastResults = results
	e.status.LastError = ""
	if runErr != nil {
		e.status.LastError = runErr.Error()
	}
}

// SyncAll reconciles every configured list in order. One list's failure
// does not abort the rest. The progress callback always receives a final
// fraction of 1.0.
func (e *Engine) SyncAll(ctx context.Context, settings config.Settings, progress models.ProgressFunc) ([]ListResult, error) {
	if progress == nil {
		progress = models.NopProgress
	}
	if !e.tryStart() {
		return nil, ErrSyncInProgress
	}

	var results []ListResult
	var runErr error
	defer func() { e.finish(results, runErr) }()

	if missing := settings.Validate(); len(missing) > 0 {
		runErr = fmt.Errorf("missing required settings: %v", missing)
		progress(1.0, "", 0, 0, runErr.Error())
		return nil, runErr
	}
	if len(settings.Lists) == 0 {
		progress(1.0, "", 0, 0, "No lists configured")
		return nil, nil
	}

	if _, err := e.target.GetSystemInfo(); err != nil {
		runErr = fmt.Errorf("emby server unreachable: %w", err)
		progress(1.0, "", 0, 0, runErr.Error())
		return nil, runErr
	}

	failures := 0
	for i, listCfg := range settings.Lists {
		listCfg := listCfg
		scaled := scaleProgress(progress, i, len(settings.Lists))

		result, err := e.syncList(ctx, settings, listCfg, scaled)
		if err != nil {
			log.Printf("[sync] list %s failed: %v", listCfg.ListID, err)
			result.Error = err.Error()
			failures++
		}
		results = append(results, result)
	}

	msg := fmt.Sprintf("Synced %d lists", len(results))
	if failures > 0 {
		msg = fmt.Sprintf("Synced %d lists, %d failed", len(results), failures)
	}
	progress(1.0, "", len(results), len(results), msg)
	return results, nil
}

// SyncList reconciles a single configured list.
func (e *Engine) SyncList(ctx context.Context, settings config.Settings, listCfg config.ListConfig, progress models.ProgressFunc) (ListResult, error) {
	if progress == nil {
		progress = models.NopProgress
	}
	if !e.tryStart() {
		return ListResult{}, ErrSyncInProgress
	}

	var runErr error
	var result ListResult
	defer func() { e.finish([]ListResult{result}, runErr) }()

	result, runErr = e.syncList(ctx, settings, listCfg, progress)
	if runErr == nil {
		progress(1.0, listCfg.CollectionName, result.Total, result.Total, "Sync complete")
	} else {
		progress(1.0, listCfg.CollectionName, 0, 0, runErr.Error())
	}
	return result, runErr
}

func (e *Engine) syncList(ctx context.Context, settings config.Settings, listCfg config.ListConfig, progress models.ProgressFunc) (ListResult, error) {
	result := ListResult{ListID: listCfg.ListID, CollectionName: listCfg.CollectionName}

	if listCfg.ListID == "" || listCfg.CollectionName == "" {
		return result, fmt.Errorf("list config incomplete: list id and collection name are required")
	}
	kind := models.ParseMediaKind(listCfg.Type)
	libraryID := e.libraryIDFor(settings, listCfg, kind)
	if libraryID == "" {
		return result, fmt.Errorf("no library id configured for %s lists", kind)
	}

	log.Printf("[sync] syncing list %s into collection %q", listCfg.ListID, listCfg.CollectionName)

	entries, err := e.lists.FetchEntries(ctx, listCfg.ListID, kind)
	if err != nil {
		return result, fmt.Errorf("fetch list %s: %w", listCfg.ListID, err)
	}
	result.Total = len(entries)
	if len(entries) == 0 {
		log.Printf("[sync] list %s is empty, nothing to do", listCfg.ListID)
		progress(1.0, listCfg.CollectionName, 0, 0, "List is empty")
		return result, nil
	}

	resolved := make([]string, len(entries))
	var processed atomic.Int64

	p := pool.New().WithMaxGoroutines(e.workers)
	for i, entry := range entries {
		i, entry := i, entry
		p.Go(func() {
			resolved[i] = e.resolveEntry(entry, listCfg.CollectionName, libraryID)

			n := int(processed.Add(1))
			msg := fmt.Sprintf("Processed %q", entry.Title)
			progress(float64(n)/float64(len(entries)), listCfg.CollectionName, n, len(entries), msg)
		})
	}
	p.Wait()

	var embyIDs []string
	for _, id := range resolved {
		if id != "" {
			embyIDs = append(embyIDs, id)
		}
	}
	result.Matched = len(embyIDs)
	result.Missing = result.Total - result.Matched

	if len(embyIDs) == 0 {
		log.Printf("[sync] no matches for list %s, skipping collection sync", listCfg.ListID)
		progress(1.0, listCfg.CollectionName, result.Total, result.Total, "No matches found in Emby library")
		return result, nil
	}

	collectionID, err := e.SyncCollection(listCfg.CollectionName, embyIDs)
	if err != nil {
		return result, fmt.Errorf("sync collection %q: %w", listCfg.CollectionName, err)
	}
	result.CollectionID = collectionID

	log.Printf("[sync] list %s done: %d/%d matched", listCfg.ListID, result.Matched, result.Total)
	return result, nil
}

// resolveEntry runs one entry through the mapping fast path and then the
// full matching pipeline. Failures are recorded in the unresolved registry
// and never propagate; the pool keeps draining.
func (e *Engine) resolveEntry(entry models.ListEntry, collectionName, libraryID string) string {
	if traktID := entry.TraktID(); traktID != "" {
		if embyID := e.mappings.Lookup(entry.Kind, traktID); embyID != "" {
			return embyID
		}
	}

	items := e.index.Get(entry.Kind, libraryID, false)
	if match := matcher.Resolve(entry, items); match != nil {
		e.mappings.Store(entry.Kind, entry.TraktID(), match.EmbyID, entry.Title)
		return match.EmbyID
	}

	reason := "No matching IDs found in Emby library"
	if !entry.HasUsableIDs() {
		reason = "No usable IDs available"
	}
	if _, err := e.registry.AddUnresolved(entry, entry.Kind, collectionName, libraryID, reason); err != nil {
		log.Printf("[sync] failed to record unresolved entry %q: %v", entry.Title, err)
	}
	return ""
}

func (e *Engine) libraryIDFor(settings config.Settings, listCfg config.ListConfig, kind models.MediaKind) string {
	if listCfg.LibraryID != "" {
		return listCfg.LibraryID
	}
	if kind == models.KindShow {
		return settings.Emby.TVLibraryID
	}
	return settings.Emby.MoviesLibraryID
}

// VerifyItem reports whether an Emby item id refers to an existing item.
func (e *Engine) VerifyItem(embyID string) (bool, error) {
	item, err := e.target.GetItem(embyID)
	if err != nil {
		return false, err
	}
	return item != nil, nil
}

// ResolveRecord re-runs full resolution for a previously failed entry
// against a freshly fetched library snapshot.
func (e *Engine) ResolveRecord(entry models.ListEntry, libraryID string) string {
	items := e.index.Get(entry.Kind, libraryID, true)
	if match := matcher.Resolve(entry, items); match != nil {
		return match.EmbyID
	}
	return ""
}

// scaleProgress maps a single list's 0..1 progress into that list's share
// of a whole-run progress bar.
func scaleProgress(progress models.ProgressFunc, listIndex, listCount int) models.ProgressFunc {
	return func(fraction float64, listName string, processedCount, total int, message string) {
		overall := (float64(listIndex) + fraction) / float64(listCount)
		progress(overall, listName, processedCount, total, message)
	}
}
