package catalog

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/JustinTDCT/CineHub/internal/models"
)

var genreSeparators = strings.NewReplacer(", ", "\x00", "&", "\x00")

// ParseGenres splits a genre list on ", " and "&", trimming each name and
// dropping empty or repeated entries. Order of first appearance is kept.
func ParseGenres(s string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(genreSeparators.Replace(s), "\x00") {
		name := strings.TrimSpace(part)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// ParseKeywords decodes the keyword JSON list. Empty input and "null" are an
// empty list.
func ParseKeywords(s string) ([]models.KeywordEntry, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var entries []models.KeywordEntry
	if err := json.Unmarshal([]byte(s), &entries); err != nil {
		return nil, fmt.Errorf("%w: keywords: %v", ErrValidation, err)
	}
	return entries, nil
}

type GenreDiff struct {
	Remove []models.Genre
	// Add holds names; resolving them to rows is the caller's job.
	Add []string
}

// DiffGenres compares current associations against the target names.
// Comparison is exact and case-sensitive.
func DiffGenres(current []models.Genre, target []string) GenreDiff {
	want := make(map[string]bool, len(target))
	for _, name := range target {
		want[name] = true
	}

	var d GenreDiff
	have := make(map[string]bool, len(current))
	for _, g := range current {
		have[g.Name] = true
		if !want[g.Name] {
			d.Remove = append(d.Remove, g)
		}
	}
	for _, name := range target {
		if !have[name] {
			d.Add = append(d.Add, name)
			have[name] = true
		}
	}
	return d
}

type KeywordDiff struct {
	Create []string
	Add    []int
	Remove []int
}

// DiffKeywords compares associated keyword ids against the target entries.
// Every entry with id 0 is a new keyword, even when its text repeats.
func DiffKeywords(current []int, target []models.KeywordEntry) KeywordDiff {
	have := make(map[int]bool, len(current))
	for _, id := range current {
		have[id] = true
	}

	var d KeywordDiff
	keep := make(map[int]bool, len(target))
	for _, e := range target {
		if e.ID == 0 {
			d.Create = append(d.Create, e.Value)
			continue
		}
		if keep[e.ID] {
			continue
		}
		keep[e.ID] = true
		if !have[e.ID] {
			d.Add = append(d.Add, e.ID)
		}
	}
	for _, id := range current {
		if !keep[id] {
			d.Remove = append(d.Remove, id)
		}
	}
	return d
}
