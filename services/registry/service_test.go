package registry

import (
	"errors"
	"testing"

	"github.com/spf13/afero"

	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/models"
)

func newTestService(t *testing.T, fs afero.Fs) *Service {
	t.Helper()
	svc, err := NewService(fs, "/data")
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc
}

func movieEntry(title string, year int, traktID string) models.ListEntry {
	ids := map[string]string{}
	if traktID != "" {
		ids["trakt"] = traktID
	}
	return models.ListEntry{Kind: models.KindMovie, Title: title, Year: year, ExternalIDs: ids}
}

func TestAddUnresolvedCreatesAndMerges(t *testing.T) {
	svc := newTestService(t, afero.NewMemMapFs())

	outcome, err := svc.AddUnresolved(movieEntry("Inception", 2010, "100"), models.KindMovie, "Favorites", "lib1", "No matching IDs found in Emby library")
	if err != nil {
		t.Fatalf("AddUnresolved failed: %v", err)
	}
	if outcome != OutcomeAdded {
		t.Errorf("expected OutcomeAdded, got %v", outcome)
	}

	outcome, err = svc.AddUnresolved(movieEntry("Inception", 2010, "100"), models.KindMovie, "Sci-Fi", "lib1", "No matching IDs found in Emby library")
	if err != nil {
		t.Fatalf("AddUnresolved failed: %v", err)
	}
	if outcome != OutcomeMerged {
		t.Errorf("expected OutcomeMerged, got %v", outcome)
	}

	missing := svc.Unresolved()
	if len(missing) != 1 {
		t.Fatalf("expected 1 unresolved record, got %d", len(missing))
	}
	if len(missing[0].Collections) != 2 {
		t.Errorf("expected 2 collection memberships, got %d", len(missing[0].Collections))
	}

	// Re-adding for an existing collection must not duplicate membership.
	if _, err := svc.AddUnresolved(movieEntry("Inception", 2010, "100"), models.KindMovie, "Favorites", "lib1", "No matching IDs found in Emby library"); err != nil {
		t.Fatalf("AddUnresolved failed: %v", err)
	}
	if got := len(svc.Unresolved()[0].Collections); got != 2 {
		t.Errorf("expected 2 collection memberships after re-add, got %d", got)
	}
}

func TestAddUnresolvedSuppressedWhenIgnored(t *testing.T) {
	svc := newTestService(t, afero.NewMemMapFs())

	if _, err := svc.AddUnresolved(movieEntry("Inception", 2010, "100"), models.KindMovie, "Favorites", "lib1", "reason"); err != nil {
		t.Fatalf("AddUnresolved failed: %v", err)
	}
	if _, err := svc.Ignore(0); err != nil {
		t.Fatalf("Ignore failed: %v", err)
	}

	outcome, err := svc.AddUnresolved(movieEntry("Inception", 2010, "100"), models.KindMovie, "Sci-Fi", "lib1", "reason")
	if err != nil {
		t.Fatalf("AddUnresolved failed: %v", err)
	}
	if outcome != OutcomeSuppressed {
		t.Errorf("expected OutcomeSuppressed, got %v", outcome)
	}
	if len(svc.Unresolved()) != 0 {
		t.Error("suppressed entry must not reappear in unresolved registry")
	}

	ignored := svc.Ignored()
	if len(ignored) != 1 {
		t.Fatalf("expected 1 ignored record, got %d", len(ignored))
	}
	if !ignored[0].HasCollection("Sci-Fi") {
		t.Error("ignored record should have merged the new collection membership")
	}
}

func TestIgnoreUnignoreRoundTrip(t *testing.T) {
	svc := newTestService(t, afero.NewMemMapFs())

	if _, err := svc.AddUnresolved(movieEntry("Dune", 2021, "200"), models.KindMovie, "Sci-Fi", "lib1", "reason"); err != nil {
		t.Fatalf("AddUnresolved failed: %v", err)
	}

	title, err := svc.Ignore(0)
	if err != nil {
		t.Fatalf("Ignore failed: %v", err)
	}
	if title != "Dune" {
		t.Errorf("expected title Dune, got %q", title)
	}
	if len(svc.Unresolved()) != 0 || len(svc.Ignored()) != 1 {
		t.Fatal("record should have moved to ignored registry")
	}
	if svc.Ignored()[0].IgnoredAt.IsZero() {
		t.Error("ignoredAt should be stamped")
	}

	if _, err := svc.Unignore(0); err != nil {
		t.Fatalf("Unignore failed: %v", err)
	}
	if len(svc.Unresolved()) != 1 || len(svc.Ignored()) != 0 {
		t.Fatal("record should have moved back to unresolved registry")
	}
}

func TestIgnoreInvalidIndex(t *testing.T) {
	svc := newTestService(t, afero.NewMemMapFs())

	if _, err := svc.Ignore(0); !errors.Is(err, ErrInvalidIndex) {
		t.Errorf("expected ErrInvalidIndex, got %v", err)
	}
	if _, err := svc.Unignore(-1); !errors.Is(err, ErrInvalidIndex) {
		t.Errorf("expected ErrInvalidIndex, got %v", err)
	}
}

func TestIgnoreMany(t *testing.T) {
	svc := newTestService(t, afero.NewMemMapFs())

	titles := []string{"A", "B", "C", "D", "E"}
	for i, title := range titles {
		if _, err := svc.AddUnresolved(movieEntry(title, 2000+i, ""), models.KindMovie, "Mixed", "lib1", "reason"); err != nil {
			t.Fatalf("AddUnresolved failed: %v", err)
		}
	}

	moved, failed, err := svc.IgnoreMany([]int{0, 2, 4, 99})
	if err != nil {
		t.Fatalf("IgnoreMany failed: %v", err)
	}
	if len(moved) != 3 {
		t.Errorf("expected 3 moved titles, got %d", len(moved))
	}
	if failed != 1 {
		t.Errorf("expected 1 failed index, got %d", failed)
	}

	remaining := svc.Unresolved()
	if len(remaining) != 2 {
		t.Fatalf("expected 2 remaining, got %d", len(remaining))
	}
	if remaining[0].Title != "B" || remaining[1].Title != "D" {
		t.Errorf("wrong records remained: %q, %q", remaining[0].Title, remaining[1].Title)
	}
	if len(svc.Ignored()) != 3 {
		t.Errorf("expected 3 ignored, got %d", len(svc.Ignored()))
	}
}

func TestIgnoreManyEmpty(t *testing.T) {
	svc := newTestService(t, afero.NewMemMapFs())
	if _, _, err := svc.IgnoreMany(nil); !errors.Is(err, ErrNoItemsSelected) {
		t.Errorf("expected ErrNoItemsSelected, got %v", err)
	}
}

func TestClearForCollection(t *testing.T) {
	svc := newTestService(t, afero.NewMemMapFs())

	if _, err := svc.AddUnresolved(movieEntry("Shared", 2020, "1"), models.KindMovie, "First", "lib1", "reason"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddUnresolved(movieEntry("Shared", 2020, "1"), models.KindMovie, "Second", "lib1", "reason"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddUnresolved(movieEntry("Only First", 2021, "2"), models.KindMovie, "First", "lib1", "reason"); err != nil {
		t.Fatal(err)
	}

	remaining, err := svc.ClearForCollection("First")
	if err != nil {
		t.Fatalf("ClearForCollection failed: %v", err)
	}
	if remaining != 1 {
		t.Fatalf("expected 1 remaining record, got %d", remaining)
	}

	recs := svc.Unresolved()
	if recs[0].Title != "Shared" {
		t.Errorf("expected Shared to survive, got %q", recs[0].Title)
	}
	if recs[0].HasCollection("First") || !recs[0].HasCollection("Second") {
		t.Error("membership for cleared collection should be removed")
	}
}

func TestRegistriesPersistAcrossReload(t *testing.T) {
	fs := afero.NewMemMapFs()
	svc := newTestService(t, fs)

	if _, err := svc.AddUnresolved(movieEntry("Memento", 2000, "300"), models.KindMovie, "Thrillers", "lib1", "reason"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddUnresolved(movieEntry("Heat", 1995, "301"), models.KindMovie, "Thrillers", "lib1", "reason"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Ignore(1); err != nil {
		t.Fatal(err)
	}

	reloaded := newTestService(t, fs)
	if len(reloaded.Unresolved()) != 1 {
		t.Errorf("expected 1 unresolved after reload, got %d", len(reloaded.Unresolved()))
	}
	if len(reloaded.Ignored()) != 1 {
		t.Errorf("expected 1 ignored after reload, got %d", len(reloaded.Ignored()))
	}
	if reloaded.Unresolved()[0].Title != "Memento" {
		t.Errorf("wrong unresolved record after reload: %q", reloaded.Unresolved()[0].Title)
	}
}

type stubResolver struct {
	verifyOK   bool
	verifyErr  error
	placeErr   error
	resolvedID string

	addedItems []string
}

func (s *stubResolver) VerifyItem(embyID string) (bool, error) { return s.verifyOK, s.verifyErr }
func (s *stubResolver) PlaceInCollection(embyID, collectionName, libraryID string) error {
	if s.placeErr != nil {
		return s.placeErr
	}
	s.addedItems = append(s.addedItems, embyID)
	return nil
}
func (s *stubResolver) ResolveRecord(entry models.ListEntry, libraryID string) string {
	return s.resolvedID
}

type stubMappings struct {
	stored []string
}

func (s *stubMappings) Store(kind models.MediaKind, traktID, embyID, title string) {
	s.stored = append(s.stored, traktID+"="+embyID)
}

func TestRecheckManualID(t *testing.T) {
	svc := newTestService(t, afero.NewMemMapFs())
	resolver := &stubResolver{verifyOK: true}
	mappings := &stubMappings{}
	svc.SetResolver(resolver, mappings)

	if _, err := svc.AddUnresolved(movieEntry("Obscure Film", 1977, "400"), models.KindMovie, "Cult", "lib1", "reason"); err != nil {
		t.Fatal(err)
	}

	msg, err := svc.Recheck(0, "emby123")
	if err != nil {
		t.Fatalf("Recheck failed: %v", err)
	}
	if msg == "" {
		t.Error("expected a summary message")
	}
	if len(svc.Unresolved()) != 0 {
		t.Error("record should be removed after successful recheck")
	}
	if len(resolver.addedItems) != 1 || resolver.addedItems[0] != "emby123" {
		t.Errorf("expected emby123 added to collection, got %v", resolver.addedItems)
	}
	if len(mappings.stored) != 1 || mappings.stored[0] != "400=emby123" {
		t.Errorf("expected mapping persisted, got %v", mappings.stored)
	}
}

func TestRecheckManualIDNotFound(t *testing.T) {
	svc := newTestService(t, afero.NewMemMapFs())
	svc.SetResolver(&stubResolver{verifyOK: false}, nil)

	if _, err := svc.AddUnresolved(movieEntry("Ghost", 1990, "401"), models.KindMovie, "Cult", "lib1", "reason"); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Recheck(0, "nope"); err == nil {
		t.Fatal("expected error for unverifiable manual id")
	}
	if len(svc.Unresolved()) != 1 {
		t.Error("record must stay unresolved when verification fails")
	}
}

func TestRecheckAutomaticResolve(t *testing.T) {
	svc := newTestService(t, afero.NewMemMapFs())
	resolver := &stubResolver{resolvedID: "emby777"}
	svc.SetResolver(resolver, &stubMappings{})

	if _, err := svc.AddUnresolved(movieEntry("Late Arrival", 2023, "402"), models.KindMovie, "New", "lib1", "reason"); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Recheck(0, ""); err != nil {
		t.Fatalf("Recheck failed: %v", err)
	}
	if len(svc.Unresolved()) != 0 {
		t.Error("record should be removed after automatic re-resolution")
	}
}

func TestRecheckStillMissingRefreshesTimestamp(t *testing.T) {
	svc := newTestService(t, afero.NewMemMapFs())
	svc.SetResolver(&stubResolver{resolvedID: ""}, nil)

	if _, err := svc.AddUnresolved(movieEntry("Vaporware", 2030, "403"), models.KindMovie, "Future", "lib1", "reason"); err != nil {
		t.Fatal(err)
	}
	before := svc.Unresolved()[0].LastCheckedAt

	if _, err := svc.Recheck(0, ""); err == nil {
		t.Fatal("expected error when item still cannot be found")
	}
	if len(svc.Unresolved()) != 1 {
		t.Fatal("record must remain unresolved")
	}
	if svc.Unresolved()[0].LastCheckedAt.Before(before) {
		t.Error("lastCheckedAt should have been refreshed")
	}
}

func TestIgnoreManyDuplicateIndices(t *testing.T) {
	svc := newTestService(t, afero.NewMemMapFs())

	for i, title := range []string{"A", "B", "C"} {
		if _, err := svc.AddUnresolved(movieEntry(title, 2000+i, ""), models.KindMovie, "Mixed", "lib1", "reason"); err != nil {
			t.Fatalf("AddUnresolved failed: %v", err)
		}
	}

	moved, failed, err := svc.IgnoreMany([]int{1, 1})
	if err != nil {
		t.Fatalf("IgnoreMany failed: %v", err)
	}
	if len(moved) != 1 || moved[0] != "B" {
		t.Errorf("expected only B moved, got %v", moved)
	}
	if failed != 0 {
		t.Errorf("expected no failed indices, got %d", failed)
	}

	remaining := svc.Unresolved()
	if len(remaining) != 2 || remaining[0].Title != "A" || remaining[1].Title != "C" {
		t.Errorf("A and C must remain, got %+v", remaining)
	}
}

func TestRecheckPlacementFailureKeepsRecord(t *testing.T) {
	svc := newTestService(t, afero.NewMemMapFs())
	resolver := &stubResolver{verifyOK: true, placeErr: errors.New("add rejected")}
	mappings := &stubMappings{}
	svc.SetResolver(resolver, mappings)

	if _, err := svc.AddUnresolved(movieEntry("Stubborn", 2015, "410"), models.KindMovie, "Cult", "lib1", "reason"); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Recheck(0, "emby123"); err == nil {
		t.Fatal("expected error when no collection accepts the item")
	}

	remaining := svc.Unresolved()
	if len(remaining) != 1 {
		t.Fatal("record must stay unresolved when every placement fails")
	}
	if remaining[0].Reason != "Found in Emby but could not add to any collections" {
		t.Errorf("reason not updated: %q", remaining[0].Reason)
	}
	if len(mappings.stored) != 0 {
		t.Errorf("no mapping must be stored, got %v", mappings.stored)
	}
}

// reentrantResolver registers another record mid-resolution, as a running
// sync would while a recheck is in flight.
type reentrantResolver struct {
	svc        *Service
	resolvedID string
	placed     []string
}

func (r *reentrantResolver) VerifyItem(embyID string) (bool, error) { return true, nil }
func (r *reentrantResolver) PlaceInCollection(embyID, collectionName, libraryID string) error {
	r.placed = append(r.placed, embyID)
	return nil
}
func (r *reentrantResolver) ResolveRecord(entry models.ListEntry, libraryID string) string {
	if _, err := r.svc.AddUnresolved(movieEntry("Concurrent Arrival", 2024, "920"), models.KindMovie, "New", "lib1", "reason"); err != nil {
		return ""
	}
	return r.resolvedID
}

func TestRecheckAllowsConcurrentRegistration(t *testing.T) {
	svc := newTestService(t, afero.NewMemMapFs())
	resolver := &reentrantResolver{svc: svc, resolvedID: "emby500"}
	svc.SetResolver(resolver, &stubMappings{})

	if _, err := svc.AddUnresolved(movieEntry("Original", 2010, "910"), models.KindMovie, "Cult", "lib1", "reason"); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Recheck(0, ""); err != nil {
		t.Fatalf("Recheck failed: %v", err)
	}

	remaining := svc.Unresolved()
	if len(remaining) != 1 || remaining[0].Title != "Concurrent Arrival" {
		t.Errorf("expected the mid-flight record to survive and the rechecked one removed, got %+v", remaining)
	}
	if len(resolver.placed) != 1 || resolver.placed[0] != "emby500" {
		t.Errorf("expected emby500 placed, got %v", resolver.placed)
	}
}
