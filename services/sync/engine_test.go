package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/config"
	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/models"
	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/services/emby"
	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/services/library"
	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/services/registry"
)

type fakeTarget struct {
	mu sync.Mutex

	systemInfoErr error
	items         map[string]*models.LibraryItem
	collections   map[string]string // name -> id
	createErr     error
	createID      string
	addErr        error
	added         map[string][]string // collectionID -> item ids
	findCalls     int
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{
		items:       map[string]*models.LibraryItem{},
		collections: map[string]string{},
		added:       map[string][]string{},
	}
}

func (f *fakeTarget) GetSystemInfo() (*emby.SystemInfo, error) {
	if f.systemInfoErr != nil {
		return nil, f.systemInfoErr
	}
	return &emby.SystemInfo{ServerName: "test"}, nil
}

func (f *fakeTarget) GetItem(itemID string) (*models.LibraryItem, error) {
	return f.items[itemID], nil
}

func (f *fakeTarget) FindCollectionByName(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findCalls++
	return f.collections[name], nil
}

func (f *fakeTarget) CreateCollectionWithItems(name string, itemIDs []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	id := f.createID
	if id == "" {
		id = "coll-" + name
	}
	f.collections[name] = id
	f.added[id] = append(f.added[id], itemIDs...)
	return id, nil
}

func (f *fakeTarget) CreateCollectionForItem(itemID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := "coll-" + name
	f.collections[name] = id
	f.added[id] = append(f.added[id], itemID)
	return nil
}

func (f *fakeTarget) AddToCollection(itemID, collectionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.added[collectionID] = append(f.added[collectionID], itemID)
	return nil
}

type fakeFetcher struct {
	mu    sync.Mutex
	items []models.LibraryItem
	calls int
	fail  bool
	delay time.Duration
}

func (f *fakeFetcher) GetLibraryItems(kind models.MediaKind, libraryID string) ([]models.LibraryItem, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return nil, errors.New("library unavailable")
	}
	return f.items, nil
}

type fakeLists struct {
	entries []models.ListEntry
	err     error
}

func (f *fakeLists) FetchEntries(ctx context.Context, listID string, kind models.MediaKind) ([]models.ListEntry, error) {
	return f.entries, f.err
}

type fakeMappings struct {
	mu     sync.Mutex
	lookup map[string]string
	stored map[string]string
}

func newFakeMappings() *fakeMappings {
	return &fakeMappings{lookup: map[string]string{}, stored: map[string]string{}}
}

func (f *fakeMappings) Lookup(kind models.MediaKind, traktID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookup[string(kind)+"_"+traktID]
}

func (f *fakeMappings) Store(kind models.MediaKind, traktID, embyID, title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored[string(kind)+"_"+traktID] = embyID
}

type fakeRegistry struct {
	mu    sync.Mutex
	added []models.ListEntry
}

func (f *fakeRegistry) AddUnresolved(entry models.ListEntry, kind models.MediaKind, collectionName, libraryID, reason string) (registry.AddOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, entry)
	return registry.OutcomeAdded, nil
}

func testSettings() config.Settings {
	return config.Settings{
		Trakt: config.TraktSettings{ClientID: "id", ClientSecret: "secret"},
		Emby: config.EmbySettings{
			ServerURL:       "http://emby",
			APIKey:          "key",
			AdminUserID:     "admin",
			MoviesLibraryID: "lib-movies",
		},
	}
}

func movieItem(id, name string, year int, imdb string) models.LibraryItem {
	return models.LibraryItem{
		ID:             id,
		Name:           name,
		ProductionYear: year,
		ProviderIDs:    map[string]string{"Imdb": imdb},
	}
}

func entryWithIDs(title string, year int, ids map[string]string) models.ListEntry {
	return models.ListEntry{Kind: models.KindMovie, Title: title, Year: year, ExternalIDs: ids}
}

func TestSyncListMatchesAndBuildsCollection(t *testing.T) {
	target := newFakeTarget()
	fetcher := &fakeFetcher{items: []models.LibraryItem{
		movieItem("e1", "Inception", 2010, "tt1375666"),
		movieItem("e2", "Heat", 1995, "tt0113277"),
	}}
	lists := &fakeLists{entries: []models.ListEntry{
		entryWithIDs("Inception", 2010, map[string]string{"trakt": "1", "imdb": "tt1375666"}),
		entryWithIDs("Heat", 1995, map[string]string{"trakt": "2", "imdb": "tt0113277"}),
		entryWithIDs("Unknown Movie", 2019, map[string]string{"trakt": "3", "imdb": "tt9999999"}),
	}}
	mappings := newFakeMappings()
	reg := &fakeRegistry{}

	engine := NewEngine(target, library.NewIndex(fetcher), lists, mappings, reg)

	settings := testSettings()
	listCfg := config.ListConfig{ListID: "L1", CollectionName: "Favorites", LibraryID: "lib-movies", Type: "movies"}

	result, err := engine.SyncList(context.Background(), settings, listCfg, nil)
	if err != nil {
		t.Fatalf("SyncList failed: %v", err)
	}
	if result.Matched != 2 || result.Missing != 1 {
		t.Errorf("expected 2 matched / 1 missing, got %d / %d", result.Matched, result.Missing)
	}
	if result.CollectionID == "" {
		t.Error("expected a collection to be created")
	}
	if len(reg.added) != 1 || reg.added[0].Title != "Unknown Movie" {
		t.Errorf("expected Unknown Movie in unresolved registry, got %+v", reg.added)
	}
	if mappings.stored["movie_1"] != "e1" || mappings.stored["movie_2"] != "e2" {
		t.Errorf("expected mappings persisted for matches, got %v", mappings.stored)
	}
	if got := len(target.added[result.CollectionID]); got != 2 {
		t.Errorf("expected 2 items in collection, got %d", got)
	}
}

func TestSyncListMappingFastPathSkipsLibrary(t *testing.T) {
	target := newFakeTarget()
	fetcher := &fakeFetcher{fail: true} // any index fetch would log and return nothing
	lists := &fakeLists{entries: []models.ListEntry{
		entryWithIDs("Cached Movie", 2015, map[string]string{"trakt": "42"}),
	}}
	mappings := newFakeMappings()
	mappings.lookup["movie_42"] = "e9"

	engine := NewEngine(target, library.NewIndex(fetcher), lists, mappings, &fakeRegistry{})

	listCfg := config.ListConfig{ListID: "L1", CollectionName: "Cached", LibraryID: "lib-movies", Type: "movies"}
	result, err := engine.SyncList(context.Background(), testSettings(), listCfg, nil)
	if err != nil {
		t.Fatalf("SyncList failed: %v", err)
	}
	if result.Matched != 1 {
		t.Fatalf("expected fast-path match, got %d matched", result.Matched)
	}
	if fetcher.calls != 0 {
		t.Errorf("mapping hit must not trigger a library fetch, got %d fetches", fetcher.calls)
	}
}

func TestSyncListEmptyList(t *testing.T) {
	engine := NewEngine(newFakeTarget(), library.NewIndex(&fakeFetcher{}), &fakeLists{}, newFakeMappings(), &fakeRegistry{})

	listCfg := config.ListConfig{ListID: "L1", CollectionName: "Empty", LibraryID: "lib-movies"}
	result, err := engine.SyncList(context.Background(), testSettings(), listCfg, nil)
	if err != nil {
		t.Fatalf("expected empty list to succeed, got %v", err)
	}
	if result.Total != 0 || result.CollectionID != "" {
		t.Errorf("expected no work for empty list, got %+v", result)
	}
}

func TestSyncListIncompleteConfig(t *testing.T) {
	engine := NewEngine(newFakeTarget(), library.NewIndex(&fakeFetcher{}), &fakeLists{}, newFakeMappings(), &fakeRegistry{})

	_, err := engine.SyncList(context.Background(), testSettings(), config.ListConfig{ListID: "L1"}, nil)
	if err == nil {
		t.Fatal("expected error for missing collection name")
	}
}

func TestSyncListNoUsableIDsReason(t *testing.T) {
	target := newFakeTarget()
	fetcher := &fakeFetcher{}
	lists := &fakeLists{entries: []models.ListEntry{
		{Kind: models.KindMovie, Title: "ID-less Obscurity", Year: 1963},
	}}
	reg := &fakeRegistry{}

	engine := NewEngine(target, library.NewIndex(fetcher), lists, newFakeMappings(), reg)

	listCfg := config.ListConfig{ListID: "L1", CollectionName: "Obscure", LibraryID: "lib-movies"}
	if _, err := engine.SyncList(context.Background(), testSettings(), listCfg, nil); err != nil {
		t.Fatalf("SyncList failed: %v", err)
	}
	if len(reg.added) != 1 {
		t.Fatalf("expected 1 unresolved entry, got %d", len(reg.added))
	}
}

func TestSyncAllContinuesPastListFailure(t *testing.T) {
	target := newFakeTarget()
	engine := NewEngine(target, library.NewIndex(&fakeFetcher{}), &fakeLists{err: errors.New("list gone")}, newFakeMappings(), &fakeRegistry{})

	settings := testSettings()
	settings.Lists = []config.ListConfig{
		{ID: "a", ListID: "L1", CollectionName: "One", LibraryID: "lib-movies"},
		{ID: "b", ListID: "L2", CollectionName: "Two", LibraryID: "lib-movies"},
	}

	var finalFraction float64
	results, err := engine.SyncAll(context.Background(), settings, func(fraction float64, listName string, processed, total int, message string) {
		finalFraction = fraction
	})
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected results for both lists, got %d", len(results))
	}
	for _, r := range results {
		if r.Error == "" {
			t.Errorf("expected per-list error recorded, got %+v", r)
		}
	}
	if finalFraction != 1.0 {
		t.Errorf("expected terminal progress fraction 1.0, got %f", finalFraction)
	}
}

func TestSyncAllFailsFastOnMissingSettings(t *testing.T) {
	engine := NewEngine(newFakeTarget(), library.NewIndex(&fakeFetcher{}), &fakeLists{}, newFakeMappings(), &fakeRegistry{})

	var lastMessage string
	_, err := engine.SyncAll(context.Background(), config.Settings{}, func(fraction float64, listName string, processed, total int, message string) {
		lastMessage = message
	})
	if err == nil {
		t.Fatal("expected error for missing settings")
	}
	if lastMessage == "" {
		t.Error("expected terminal progress message")
	}
}

func TestSyncAllUnreachableServer(t *testing.T) {
	target := newFakeTarget()
	target.systemInfoErr = errors.New("connection refused")
	engine := NewEngine(target, library.NewIndex(&fakeFetcher{}), &fakeLists{}, newFakeMappings(), &fakeRegistry{})

	settings := testSettings()
	settings.Lists = []config.ListConfig{{ID: "a", ListID: "L1", CollectionName: "One", LibraryID: "lib"}}

	if _, err := engine.SyncAll(context.Background(), settings, nil); err == nil {
		t.Fatal("expected error when Emby is unreachable")
	}
}

func TestSyncRejectsConcurrentRuns(t *testing.T) {
	engine := NewEngine(newFakeTarget(), library.NewIndex(&fakeFetcher{}), &fakeLists{}, newFakeMappings(), &fakeRegistry{})
	engine.running = true

	if _, err := engine.SyncAll(context.Background(), testSettings(), nil); !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("expected ErrSyncInProgress, got %v", err)
	}
	if _, err := engine.SyncList(context.Background(), testSettings(), config.ListConfig{}, nil); !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("expected ErrSyncInProgress, got %v", err)
	}
}

func TestSyncCollectionExistingIsIdempotent(t *testing.T) {
	target := newFakeTarget()
	target.collections["Favorites"] = "coll-1"
	engine := NewEngine(target, library.NewIndex(&fakeFetcher{}), &fakeLists{}, newFakeMappings(), &fakeRegistry{})

	id, err := engine.SyncCollection("Favorites", []string{"e1", "e2"})
	if err != nil {
		t.Fatalf("SyncCollection failed: %v", err)
	}
	if id != "coll-1" {
		t.Errorf("expected existing collection id, got %s", id)
	}
	if len(target.added["coll-1"]) != 2 {
		t.Errorf("expected 2 adds, got %v", target.added["coll-1"])
	}
}

func TestSyncCollectionFallbackPath(t *testing.T) {
	target := newFakeTarget()
	target.createErr = errors.New("legacy endpoint rejected")
	engine := NewEngine(target, library.NewIndex(&fakeFetcher{}), &fakeLists{}, newFakeMappings(), &fakeRegistry{})

	id, err := engine.SyncCollection("New Coll", []string{"e1", "e2", "e3"})
	if err != nil {
		t.Fatalf("SyncCollection fallback failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected collection id from re-search")
	}
	// Seed item plus the two remaining adds.
	if got := len(target.added[id]); got != 3 {
		t.Errorf("expected 3 items placed, got %d", got)
	}
}

func TestPlaceInCollectionCreatesWhenMissing(t *testing.T) {
	target := newFakeTarget()
	engine := NewEngine(target, library.NewIndex(&fakeFetcher{}), &fakeLists{}, newFakeMappings(), &fakeRegistry{})

	if err := engine.PlaceInCollection("e1", "Recheck Coll", "lib"); err != nil {
		t.Fatalf("PlaceInCollection failed: %v", err)
	}
	id := target.collections["Recheck Coll"]
	if id == "" {
		t.Fatal("expected collection created")
	}
	if len(target.added[id]) != 1 || target.added[id][0] != "e1" {
		t.Errorf("expected e1 placed, got %v", target.added[id])
	}
}

func TestPlaceInCollectionReportsAddFailure(t *testing.T) {
	target := newFakeTarget()
	target.collections["Favorites"] = "coll-1"
	target.addErr = errors.New("server refused the add")
	engine := NewEngine(target, library.NewIndex(&fakeFetcher{}), &fakeLists{}, newFakeMappings(), &fakeRegistry{})

	err := engine.PlaceInCollection("e1", "Favorites", "lib")
	if err == nil {
		t.Fatal("expected failed add to be reported")
	}
	if len(target.added["coll-1"]) != 0 {
		t.Errorf("no items should have been placed, got %v", target.added["coll-1"])
	}
}

func TestSyncListColdCacheFetchesOnce(t *testing.T) {
	target := newFakeTarget()
	fetcher := &fakeFetcher{delay: 20 * time.Millisecond}
	var entries []models.ListEntry
	for i := 0; i < 10; i++ {
		entries = append(entries, entryWithIDs(fmt.Sprintf("Unknown %d", i), 2000, map[string]string{
			"trakt": fmt.Sprintf("%d", i),
		}))
	}
	lists := &fakeLists{entries: entries}
	engine := NewEngine(target, library.NewIndex(fetcher), lists, newFakeMappings(), &fakeRegistry{})

	listCfg := config.ListConfig{ListID: "L1", CollectionName: "Cold", LibraryID: "lib-movies"}
	if _, err := engine.SyncList(context.Background(), testSettings(), listCfg, nil); err != nil {
		t.Fatalf("SyncList failed: %v", err)
	}
	if fetcher.calls != 1 {
		t.Errorf("expected one library fetch for the whole list, got %d", fetcher.calls)
	}
}

func TestVerifyItem(t *testing.T) {
	target := newFakeTarget()
	target.items["e1"] = &models.LibraryItem{ID: "e1", Name: "Known"}
	engine := NewEngine(target, library.NewIndex(&fakeFetcher{}), &fakeLists{}, newFakeMappings(), &fakeRegistry{})

	ok, err := engine.VerifyItem("e1")
	if err != nil || !ok {
		t.Errorf("expected e1 to verify, got ok=%v err=%v", ok, err)
	}
	ok, err = engine.VerifyItem("missing")
	if err != nil || ok {
		t.Errorf("expected missing item to fail verification, got ok=%v err=%v", ok, err)
	}
}

func TestScaleProgress(t *testing.T) {
	var got []float64
	scaled := scaleProgress(func(fraction float64, listName string, processed, total int, message string) {
		got = append(got, fraction)
	}, 1, 2)

	scaled(0, "x", 0, 10, "")
	scaled(1, "x", 10, 10, "")

	if fmt.Sprintf("%.2f %.2f", got[0], got[1]) != "0.50 1.00" {
		t.Errorf("unexpected scaled fractions: %v", got)
	}
}
