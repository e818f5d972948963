package matcher

import (
	"regexp"
	"strings"

	"github.com/mozillazg/go-unidecode"
)

var (
	yearParenRe    = regexp.MustCompile(`\s*\(\d{4}\)\s*`)
	nonWordRe      = regexp.MustCompile(`[^\w\s]`)
	leadArticleRe  = regexp.MustCompile(`^(?:the|a|an)\s+`)
	brandPrefixRe  = regexp.MustCompile(`^marvels\s+`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
	pathIMDBTagRe  = regexp.MustCompile(`\[imdbid-(tt\d+)\]`)
	bareIMDBDigits = regexp.MustCompile(`^\d+$`)
)

// NormalizeTitle canonicalizes a title for approximate matching: ASCII
// transliteration, lowercase, parenthesized year removed, punctuation
// stripped, one leading article and the "Marvel's" brand prefix removed,
// whitespace collapsed. The function is total and idempotent.
func NormalizeTitle(title string) string {
	t := strings.ToLower(unidecode.Unidecode(title))
	t = yearParenRe.ReplaceAllString(t, " ")
	t = nonWordRe.ReplaceAllString(t, "")
	t = strings.TrimSpace(t)
	// Stripping one prefix can expose another ("the a team"), so strip to
	// a fixed point to keep the function idempotent.
	for {
		stripped := brandPrefixRe.ReplaceAllString(leadArticleRe.ReplaceAllString(t, ""), "")
		if stripped == t {
			break
		}
		t = stripped
	}
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(t, " "))
}

// IMDBVariants returns the tt-prefixed and bare forms of an IMDB
// identifier. Emby stores either form inconsistently, so lookups should
// probe both. Empty or unrecognizable input yields two empty strings.
func IMDBVariants(raw string) (prefixed, bare string) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", ""
	}
	if strings.HasPrefix(id, "tt") {
		return id, id[2:]
	}
	if bareIMDBDigits.MatchString(id) {
		return "tt" + id, id
	}
	// Not an IMDB-shaped id; pass it through untouched.
	return id, id
}

// ExtractIMDBFromPath pulls an IMDB id out of a library item's file path
// when it carries an [imdbid-ttNNNNNNN] tag, as *arr-managed libraries do.
func ExtractIMDBFromPath(path string) string {
	if !strings.Contains(path, "[imdbid-") {
		return ""
	}
	m := pathIMDBTagRe.FindStringSubmatch(path)
	if m == nil {
		return ""
	}
	return m[1]
}
