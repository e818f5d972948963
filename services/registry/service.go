package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/models"
)

var (
	ErrInvalidIndex          = errors.New("invalid item index")
	ErrNoItemsSelected       = errors.New("no valid items selected")
	ErrResolverNotConfigured = errors.New("resolver not configured")
)

// AddOutcome describes what AddUnresolved did with an entry.
type AddOutcome int

const (
	OutcomeAdded AddOutcome = iota
	OutcomeMerged
	OutcomeSuppressed
)

// Resolver is the slice of the reconciliation engine the registry needs
// for rechecking records: item verification, collection placement and
// full re-resolution against a fresh library snapshot.
type Resolver interface {
	VerifyItem(embyID string) (bool, error)
	PlaceInCollection(embyID, collectionName, libraryID string) error
	ResolveRecord(entry models.ListEntry, libraryID string) string
}

// MappingWriter persists confirmed resolutions discovered during recheck.
type MappingWriter interface {
	Store(kind models.MediaKind, traktID, embyID, title string)
}

// Service owns the unresolved and ignored registries. Both are ordered
// lists persisted as JSON files and rewritten in full on every mutation.
// No identity ever appears in both registries at once.
type Service struct {
	mu          sync.Mutex
	fs          afero.Fs
	missingPath string
	ignoredPath string

	missing []models.UnresolvedRecord
	ignored []models.IgnoredRecord

	resolver Resolver
	mappings MappingWriter
}

// NewService creates the registry service, loading both registries from
// the storage directory.
func NewService(fs afero.Fs, storageDir string) (*Service, error) {
	if err := fs.MkdirAll(storageDir, 0o755); err != nil {
		return nil, fmt.Errorf("create registry dir: %w", err)
	}

	s := &Service{
		fs:          fs,
		missingPath: filepath.Join(storageDir, "missing_items.json"),
		ignoredPath: filepath.Join(storageDir, "ignored_items.json"),
	}

	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// SetResolver wires the recheck collaborators after construction; the
// engine and the registry reference each other, so this breaks the cycle.
func (s *Service) SetResolver(resolver Resolver, mappings MappingWriter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolver = resolver
	s.mappings = mappings
}

// Unresolved returns a snapshot of the unresolved registry.
func (s *Service) Unresolved() []models.UnresolvedRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.UnresolvedRecord, len(s.missing))
	copy(out, s.missing)
	return out
}

// Ignored returns a snapshot of the ignored registry.
func (s *Service) Ignored() []models.IgnoredRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.IgnoredRecord, len(s.ignored))
	copy(out, s.ignored)
	return out
}

// AddUnresolved records a failed resolution. If the same identity is
// already ignored, only its collection membership is merged and the entry
// is not reintroduced; if it is already unresolved, membership is merged
// and lastCheckedAt refreshed; otherwise a new record is created.
//
// Identity is the entry's Trakt id. Entries without one fall back to
// title+year, which can collide across lists; that degraded mode is
// accepted rather than papered over.
func (s *Service) AddUnresolved(entry models.ListEntry, kind models.MediaKind, collectionName, libraryID, reason string) (AddOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := models.UnresolvedRecord{
		Title:         entry.Title,
		Year:          entry.Year,
		Kind:          kind,
		ExternalIDs:   entry.ExternalIDs,
		Reason:        reason,
		LastCheckedAt: time.Now().UTC(),
		Collections:   []models.CollectionRef{{Name: collectionName, LibraryID: libraryID}},
	}
	identity := rec.Identity()

	if entry.TraktID() == "" {
		log.Printf("[registry] no Trakt ID for %q, tracking by title/year only", entry.Title)
	}

	for i := range s.ignored {
		if s.ignored[i].Identity() != identity {
			continue
		}
		if !s.ignored[i].HasCollection(collectionName) {
			s.ignored[i].Collections = append(s.ignored[i].Collections,
				models.CollectionRef{Name: collectionName, LibraryID: libraryID})
			if err := s.saveIgnoredLocked(); err != nil {
				return OutcomeSuppressed, err
			}
		}
		log.Printf("[registry] %q is ignored, not adding to unresolved", entry.Title)
		return OutcomeSuppressed, nil
	}

	for i := range s.missing {
		if s.missing[i].Identity() != identity {
			continue
		}
		if !s.missing[i].HasCollection(collectionName) {
			s.missing[i].Collections = append(s.missing[i].Collections,
				models.CollectionRef{Name: collectionName, LibraryID: libraryID})
		}
		s.missing[i].Reason = reason
		s.missing[i].LastCheckedAt = time.Now().UTC()
		return OutcomeMerged, s.saveMissingLocked()
	}

	s.missing = append(s.missing, rec)
	return OutcomeAdded, s.saveMissingLocked()
}

// Ignore moves the unresolved record at index into the ignored registry,
// stamping ignoredAt. Both files are persisted before returning.
func (s *Service) Ignore(index int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ignoreLocked(index)
}

func (s *Service) ignoreLocked(index int) (string, error) {
	if index < 0 || index >= len(s.missing) {
		return "", ErrInvalidIndex
	}

	rec := s.missing[index]
	s.ignored = append(s.ignored, models.IgnoredRecord{
		UnresolvedRecord: rec,
		IgnoredAt:        time.Now().UTC(),
	})
	s.missing = append(s.missing[:index], s.missing[index+1:]...)

	if err := s.saveMissingLocked(); err != nil {
		return rec.Title, err
	}
	return rec.Title, s.saveIgnoredLocked()
}

// IgnoreMany moves multiple unresolved records to the ignored registry.
// Indices are deduplicated and processed in descending order so earlier
// moves do not shift the positions of later ones; each move persists both
// registries before the next starts. Returns the titles moved and the
// number of invalid indices skipped.
func (s *Service) IgnoreMany(indices []int) ([]string, int, error) {
	if len(indices) == 0 {
		return nil, 0, ErrNoItemsSelected
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sorted := append([]int(nil), indices...)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
	// A duplicated index would otherwise ignore whatever record shifted
	// into that position after the first move.
	deduped := sorted[:0]
	for i, idx := range sorted {
		if i > 0 && idx == sorted[i-1] {
			continue
		}
		deduped = append(deduped, idx)
	}

	var titles []string
	failed := 0
	for _, idx := range deduped {
		title, err := s.ignoreLocked(idx)
		if errors.Is(err, ErrInvalidIndex) {
			failed++
			continue
		}
		if err != nil {
			return titles, failed, err
		}
		titles = append(titles, title)
	}

	if len(titles) == 0 {
		return nil, failed, ErrNoItemsSelected
	}
	return titles, failed, nil
}

// Unignore moves the ignored record at index back to unresolved, dropping
// ignoredAt and refreshing lastCheckedAt.
func (s *Service) Unignore(index int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.ignored) {
		return "", ErrInvalidIndex
	}

	rec := s.ignored[index].UnresolvedRecord
	rec.LastCheckedAt = time.Now().UTC()
	s.missing = append(s.missing, rec)
	s.ignored = append(s.ignored[:index], s.ignored[index+1:]...)

	if err := s.saveMissingLocked(); err != nil {
		return rec.Title, err
	}
	return rec.Title, s.saveIgnoredLocked()
}

// Recheck re-attempts resolution of the unresolved record at index. With a
// manual Emby id, the id is verified against the server and the item added
// to every collection the record belongs to; otherwise resolution re-runs
// against a fresh library snapshot. On placement into at least one
// collection the record is removed and the mapping persisted.
//
// The record is snapshotted up front and the lock released for the server
// calls, so a running sync can keep registering items; afterwards the
// record is located again by identity, as other mutations may have shifted
// or removed it.
func (s *Service) Recheck(index int, manualEmbyID string) (string, error) {
	s.mu.Lock()
	if index < 0 || index >= len(s.missing) {
		s.mu.Unlock()
		return "", ErrInvalidIndex
	}
	if s.resolver == nil {
		s.mu.Unlock()
		return "", ErrResolverNotConfigured
	}
	rec := s.missing[index]
	resolver := s.resolver
	mappings := s.mappings
	s.mu.Unlock()

	log.Printf("[registry] rechecking %s: %s (%d)", rec.Kind, rec.Title, rec.Year)

	embyID := strings.TrimSpace(manualEmbyID)
	if embyID != "" {
		ok, err := resolver.VerifyItem(embyID)
		if err != nil {
			return "", fmt.Errorf("verify manual id: %w", err)
		}
		if !ok {
			return "", fmt.Errorf("emby item %s not found", embyID)
		}
	} else {
		libraryID := ""
		if len(rec.Collections) > 0 {
			libraryID = rec.Collections[0].LibraryID
		}
		embyID = resolver.ResolveRecord(rec.Entry(), libraryID)
		if embyID == "" {
			if err := s.refreshRecord(rec.Identity(), ""); err != nil {
				return "", err
			}
			return "", fmt.Errorf("could not find %q in Emby library", rec.Title)
		}
	}

	added := 0
	for _, coll := range rec.Collections {
		if err := resolver.PlaceInCollection(embyID, coll.Name, coll.LibraryID); err != nil {
			log.Printf("[registry] failed to add %q to collection %q: %v", rec.Title, coll.Name, err)
			continue
		}
		added++
	}

	if added == 0 {
		if err := s.refreshRecord(rec.Identity(), "Found in Emby but could not add to any collections"); err != nil {
			return "", err
		}
		return "", fmt.Errorf("found %q but could not add to any collections", rec.Title)
	}

	if mappings != nil {
		mappings.Store(rec.Kind, rec.Entry().TraktID(), embyID, rec.Title)
	}

	if err := s.removeRecord(rec.Identity()); err != nil {
		return "", err
	}
	return fmt.Sprintf("Added %q to %d collections", rec.Title, added), nil
}

// refreshRecord updates the check time, and the reason when non-empty, of
// the unresolved record with the given identity, if it is still registered.
func (s *Service) refreshRecord(identity, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.missing {
		if s.missing[i].Identity() != identity {
			continue
		}
		if reason != "" {
			s.missing[i].Reason = reason
		}
		s.missing[i].LastCheckedAt = time.Now().UTC()
		return s.saveMissingLocked()
	}
	return nil
}

// removeRecord drops the unresolved record with the given identity, if it
// is still registered.
func (s *Service) removeRecord(identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.missing {
		if s.missing[i].Identity() != identity {
			continue
		}
		s.missing = append(s.missing[:i], s.missing[i+1:]...)
		return s.saveMissingLocked()
	}
	return nil
}

// ClearForCollection removes the named collection from every unresolved
// record's membership and drops records left with no memberships. Returns
// the number of records remaining.
func (s *Service) ClearForCollection(collectionName string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.missing[:0]
	for _, rec := range s.missing {
		colls := rec.Collections[:0]
		for _, c := range rec.Collections {
			if c.Name != collectionName {
				colls = append(colls, c)
			}
		}
		rec.Collections = colls
		if len(rec.Collections) > 0 {
			kept = append(kept, rec)
		}
	}
	s.missing = kept

	if err := s.saveMissingLocked(); err != nil {
		return len(s.missing), err
	}
	return len(s.missing), nil
}

func (s *Service) load() error {
	if err := loadJSON(s.fs, s.missingPath, &s.missing); err != nil {
		return fmt.Errorf("load unresolved registry: %w", err)
	}
	if err := loadJSON(s.fs, s.ignoredPath, &s.ignored); err != nil {
		return fmt.Errorf("load ignored registry: %w", err)
	}
	log.Printf("[registry] loaded %d unresolved, %d ignored items", len(s.missing), len(s.ignored))
	return nil
}

func loadJSON(fs afero.Fs, path string, v any) error {
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func (s *Service) saveMissingLocked() error {
	return saveJSON(s.fs, s.missingPath, s.missing)
}

func (s *Service) saveIgnoredLocked() error {
	return saveJSON(s.fs, s.ignoredPath, s.ignored)
}

func saveJSON(fs afero.Fs, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}

	tmp := path + ".tmp"
	if err := afero.WriteFile(fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := fs.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
