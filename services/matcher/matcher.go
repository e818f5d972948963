package matcher

import (
	"strings"

	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/models"
)

// Match source labels, reported for logging and unresolved reasons.
const (
	SourceIMDB      = "IMDB metadata"
	SourceIMDBPath  = "IMDB in filename"
	SourceTMDB      = "TMDB"
	SourceTVDB      = "TVDB"
	SourceTitle     = "Title match"
	fuzzyThreshold  = 0.6
	substringScore  = 0.9
	yearWindowYears = 1
)

// Match is a successful resolution of a list entry to a library item.
type Match struct {
	EmbyID string
	Source string
	Score  float64
}

// lookups holds the per-build multi-key index over a library snapshot.
type lookups struct {
	imdb     map[string]string
	pathIMDB map[string]string
	tmdb     map[string]string
	tvdb     map[string]string
}

func buildLookups(items []models.LibraryItem) lookups {
	l := lookups{
		imdb:     make(map[string]string),
		pathIMDB: make(map[string]string),
		tmdb:     make(map[string]string),
		tvdb:     make(map[string]string),
	}
	for _, item := range items {
		if id := item.ProviderID("Imdb"); id != "" {
			// Emby stores IMDB ids with and without the tt prefix, so
			// index both representations.
			prefixed, bare := IMDBVariants(id)
			l.imdb[prefixed] = item.ID
			if bare != prefixed {
				l.imdb[bare] = item.ID
			}
		}
		if id := item.ProviderID("Tmdb"); id != "" {
			l.tmdb[id] = item.ID
		}
		if id := item.ProviderID("Tvdb"); id != "" {
			l.tvdb[id] = item.ID
		}
		if id := ExtractIMDBFromPath(item.Path); id != "" {
			l.pathIMDB[id] = item.ID
		}
	}
	return l
}

// Resolve maps a list entry onto a library snapshot. Strategies run in
// strict reliability order and short-circuit on the first hit: IMDB
// metadata (both id forms), IMDB id embedded in the file path, TMDB id,
// TVDB id (shows only), then fuzzy title matching constrained to a ±1
// production-year window. Returns nil when nothing matches.
func Resolve(entry models.ListEntry, items []models.LibraryItem) *Match {
	l := buildLookups(items)

	if imdbID := entry.ID("imdb"); imdbID != "" {
		prefixed, bare := IMDBVariants(imdbID)
		if embyID, ok := l.imdb[prefixed]; ok {
			return &Match{EmbyID: embyID, Source: SourceIMDB, Score: 1}
		}
		if embyID, ok := l.imdb[bare]; ok {
			return &Match{EmbyID: embyID, Source: SourceIMDB, Score: 1}
		}
		if embyID, ok := l.pathIMDB[prefixed]; ok {
			return &Match{EmbyID: embyID, Source: SourceIMDBPath, Score: 1}
		}
	}

	if tmdbID := entry.ID("tmdb"); tmdbID != "" {
		if embyID, ok := l.tmdb[tmdbID]; ok {
			return &Match{EmbyID: embyID, Source: SourceTMDB, Score: 1}
		}
	}

	if entry.Kind == models.KindShow {
		if tvdbID := entry.ID("tvdb"); tvdbID != "" {
			if embyID, ok := l.tvdb[tvdbID]; ok {
				return &Match{EmbyID: embyID, Source: SourceTVDB, Score: 1}
			}
		}
	}

	return resolveByTitle(entry, items)
}

// resolveByTitle is the fuzzy fallback. Items whose production year lies
// more than one year from the entry's are excluded entirely, not merely
// scored lower.
func resolveByTitle(entry models.ListEntry, items []models.LibraryItem) *Match {
	want := NormalizeTitle(entry.Title)
	if want == "" {
		return nil
	}
	wantWords := strings.Fields(want)

	var best *Match
	for _, item := range items {
		if entry.Year != 0 && item.ProductionYear != 0 {
			diff := entry.Year - item.ProductionYear
			if diff < -yearWindowYears || diff > yearWindowYears {
				continue
			}
		}

		got := NormalizeTitle(item.Name)
		if got == "" {
			continue
		}

		if want == got {
			return &Match{EmbyID: item.ID, Source: SourceTitle, Score: 1}
		}

		if strings.Contains(got, want) || strings.Contains(want, got) {
			if best == nil || substringScore > best.Score {
				best = &Match{EmbyID: item.ID, Source: SourceTitle, Score: substringScore}
			}
			continue
		}

		if score := wordOverlap(wantWords, strings.Fields(got)); score > fuzzyThreshold {
			if best == nil || score > best.Score {
				best = &Match{EmbyID: item.ID, Source: SourceTitle, Score: score}
			}
		}
	}

	if best != nil && best.Score >= fuzzyThreshold {
		return best
	}
	return nil
}

// wordOverlap scores two token lists by Jaccard-style overlap:
// |intersection| / max(|a|, |b|).
func wordOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(a))
	for _, w := range a {
		setA[w] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, w := range b {
		setB[w] = struct{}{}
	}

	common := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			common++
		}
	}

	denom := len(setA)
	if len(setB) > denom {
		denom = len(setB)
	}
	return float64(common) / float64(denom)
}
