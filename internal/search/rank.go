package search

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// Hit is a ranked document.
type Hit struct {
	Document
	Score float64 `json:"score"`
}

// tokenFloor is the lowest per-token similarity that counts as a match; a
// weaker best match contributes nothing to the token score.
const tokenFloor = 0.8

// Score rates how well text matches query on a 0..100 scale. It takes the best
// of three Levenshtein ratios: the whole strings, the strings with their words
// sorted, and the mean best match of each query token against the text's
// tokens.
func Score(query, text string) float64 {
	q, t := Normalize(query), Normalize(text)
	if q == "" || t == "" {
		return 0
	}
	qTokens, tTokens := Tokens(q), Tokens(t)
	whole := ratio(q, t)
	sorted := ratio(sortedJoin(qTokens), sortedJoin(tTokens))

	var tokenScore float64
	if len(qTokens) > 0 && len(tTokens) > 0 {
		var sum float64
		for _, qt := range qTokens {
			var best float64
			for _, tt := range tTokens {
				if s := ratio(qt, tt); s > best {
					best = s
				}
			}
			if best >= tokenFloor {
				sum += best
			}
		}
		tokenScore = sum / float64(len(qTokens))
	}
	return max(whole, sorted, tokenScore) * 100
}

// ratio is one minus the Levenshtein distance over the longer length.
func ratio(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 0
	}
	return 1 - float64(matchr.Levenshtein(a, b))/float64(longest)
}

func sortedJoin(tokens []string) string {
	s := append([]string(nil), tokens...)
	sort.Strings(s)
	return strings.Join(s, " ")
}

// Rank scores docs against query and returns up to limit hits at or above
// cutoff, best first. Ties keep control-number order.
func Rank(query string, docs []Document, limit int, cutoff float64) []Hit {
	hits := make([]Hit, 0, len(docs))
	for _, d := range docs {
		s := Score(query, d.Text())
		if s < cutoff {
			continue
		}
		hits = append(hits, Hit{Document: d, Score: s})
	}
	sortHits(hits)
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// Match returns docs whose text contains every query token.
func Match(query string, docs []Document, limit int) []Hit {
	tokens := Tokens(query)
	hits := make([]Hit, 0)
	for _, d := range docs {
		text := Normalize(d.Text())
		ok := true
		for _, tok := range tokens {
			if !strings.Contains(text, tok) {
				ok = false
				break
			}
		}
		if ok {
			hits = append(hits, Hit{Document: d, Score: 100})
		}
	}
	sortHits(hits)
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func sortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ControlNumber < hits[j].ControlNumber
	})
}
