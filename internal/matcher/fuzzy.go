// Package matcher maps loosely typed store names onto catalog entries.
package matcher

import (
	"strings"
	"unicode/utf8"
)

// Best returns the candidate whose name best matches query.
//
// An exact case-insensitive match wins immediately. Otherwise each candidate
// is scored by Score and the first candidate with the highest positive score
// is returned. ok is false when nothing scores above zero.
func Best[T any](query string, candidates []T, name func(T) string) (best T, ok bool) {
	q := normalize(query)
	if q == "" {
		return best, false
	}

	for _, c := range candidates {
		if n := normalize(name(c)); n != "" && n == q {
			return c, true
		}
	}

	bestScore := 0.0
	for _, c := range candidates {
		n := normalize(name(c))
		if n == "" {
			continue
		}
		if s := score(q, n); s > bestScore {
			best, bestScore, ok = c, s, true
		}
	}
	return best, ok
}

// Score rates how well query matches name; higher is better. An exact match
// scores 1. A query that contains the name scores the rune length ratio
// len(query)/len(name), which exceeds 1, and zero means no match.
func Score(query, name string) float64 {
	q, n := normalize(query), normalize(name)
	if q == "" || n == "" {
		return 0
	}
	if q == n {
		return 1
	}
	return score(q, n)
}

func score(q, n string) float64 {
	var substring float64
	if strings.Contains(n, q) || strings.Contains(q, n) {
		substring = float64(utf8.RuneCountInString(q)) / float64(max(utf8.RuneCountInString(n), 1))
	}
	return max(substring, overlap(q, n))
}

// overlap is |shared words| / max(|query words|, |name words|)
func overlap(q, n string) float64 {
	qw, nw := words(q), words(n)
	if len(qw) == 0 || len(nw) == 0 {
		return 0
	}
	shared := 0
	for w := range qw {
		if nw[w] {
			shared++
		}
	}
	return float64(shared) / float64(max(len(qw), len(nw)))
}

func words(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		set[w] = true
	}
	return set
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
