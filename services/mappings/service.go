package mappings

import (
	"log"
	"time"

	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/internal/database"
	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/models"
)

// Service is the Mapping Store: a durable cache of confirmed entry→item
// resolutions keyed by kind + Trakt id, consulted before any library scan.
type Service struct {
	repo *database.MappingRepository
}

// NewService creates the mapping store service.
func NewService(repo *database.MappingRepository) *Service {
	return &Service{repo: repo}
}

// Lookup returns the stored Emby id for (kind, traktID), or an empty
// string when no mapping exists. Storage errors degrade to a miss so the
// caller falls through to a library scan.
func (s *Service) Lookup(kind models.MediaKind, traktID string) string {
	if traktID == "" {
		return ""
	}
	rec, err := s.repo.Get(kind, traktID)
	if err != nil {
		log.Printf("[mappings] lookup failed for %s/%s: %v", kind, traktID, err)
		return ""
	}
	if rec == nil {
		return ""
	}
	return rec.EmbyID
}

// Store records a confirmed resolution. Entries without a Trakt id cannot
// be keyed and are skipped.
func (s *Service) Store(kind models.MediaKind, traktID, embyID, title string) {
	if traktID == "" || embyID == "" {
		return
	}
	rec := models.MappingRecord{
		Kind:        kind,
		TraktID:     traktID,
		EmbyID:      embyID,
		Title:       title,
		LastUpdated: time.Now().UTC(),
	}
	if err := s.repo.Upsert(rec); err != nil {
		log.Printf("[mappings] failed to save mapping for %s: %v", title, err)
		return
	}
	log.Printf("[mappings] saved mapping %s/%s -> %s (%s)", kind, traktID, embyID, title)
}

// All returns every stored mapping, newest first.
func (s *Service) All() ([]models.MappingRecord, error) {
	return s.repo.All()
}

// Count returns the number of stored mappings.
func (s *Service) Count() (int, error) {
	return s.repo.Count()
}
