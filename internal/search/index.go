// Package search ranks exercise catalog entries against free-text queries.
//
// Matching is per field. For every query token the best hit counts:
//
//	exact name token        1.0
//	prefix of a name token  0.75 (query tokens of 3+ runes)
//	target muscle           0.6
//	description token       0.3
//
// A document's score is the mean over query tokens, so it lies in (0, 1].
// Ties prefer shorter names, then the lower id. The index is immutable after
// construction and safe for concurrent use.
package search

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	weightName        = 1.0
	weightNamePrefix  = 0.75
	weightMuscle      = 0.6
	weightDescription = 0.3

	minPrefixRunes = 3
)

// Document is one exercise definition.
type Document struct {
	ID          string
	Name        string
	Description string
	Muscles     []string
}

// Result is a ranked document id with its score.
type Result struct {
	ID    string
	Score float64
}

// Index answers ranked queries.
type Index interface {
	TopK(query string, k int) []Result
}

type Option func(*config)

type config struct {
	stopwords map[string]struct{}
	maxDocs   int
}

// WithStopwords drops words from both documents and queries.
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			if w = Fold(strings.TrimSpace(w)); w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

// WithMaxDocs indexes at most n documents.
func WithMaxDocs(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxDocs = n
		}
	}
}

// DefaultStopwords are connectives common in exercise descriptions.
var DefaultStopwords = []string{"a", "an", "and", "the", "of", "on", "with", "to", "in", "for"}

type entry struct {
	id      string
	name    []string
	nameSet map[string]struct{}
	muscles map[string]struct{}
	desc    map[string]struct{}
}

type index struct {
	cfg     config
	entries []entry
}

// NewIndex builds an Index over docs, skipping documents with no tokens.
func NewIndex(docs []Document, opts ...Option) Index {
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}
	entries := make([]entry, 0, len(docs))
	for _, d := range docs {
		e := entry{
			id:      d.ID,
			name:    tokens(d.Name, cfg.stopwords),
			muscles: set(tokens(strings.Join(d.Muscles, " "), cfg.stopwords)),
			desc:    set(tokens(d.Description, cfg.stopwords)),
		}
		e.nameSet = set(e.name)
		if len(e.name)+len(e.muscles)+len(e.desc) == 0 {
			continue
		}
		entries = append(entries, e)
		if cfg.maxDocs > 0 && len(entries) >= cfg.maxDocs {
			break
		}
	}
	return &index{cfg: cfg, entries: entries}
}

// match scores one query token against e.
func (e *entry) match(q string) float64 {
	if _, ok := e.nameSet[q]; ok {
		return weightName
	}
	if utf8.RuneCountInString(q) >= minPrefixRunes {
		for _, n := range e.name {
			if strings.HasPrefix(n, q) {
				return weightNamePrefix
			}
		}
	}
	if _, ok := e.muscles[q]; ok {
		return weightMuscle
	}
	if _, ok := e.desc[q]; ok {
		return weightDescription
	}
	return 0
}

// TopK returns up to k matches, best first. k <= 0 means 10.
func (i *index) TopK(query string, k int) []Result {
	q := uniq(tokens(query, i.cfg.stopwords))
	if len(q) == 0 || len(i.entries) == 0 {
		return nil
	}
	if k <= 0 {
		k = 10
	}

	type hit struct {
		id    string
		score float64
		size  int
	}
	hits := make([]hit, 0, len(i.entries))
	for j := range i.entries {
		e := &i.entries[j]
		var sum float64
		for _, t := range q {
			sum += e.match(t)
		}
		if sum > 0 {
			hits = append(hits, hit{id: e.id, score: sum / float64(len(q)), size: len(e.name)})
		}
	}
	if len(hits) == 0 {
		return nil
	}
	sort.Slice(hits, func(a, b int) bool {
		if hits[a].score != hits[b].score {
			return hits[a].score > hits[b].score
		}
		if hits[a].size != hits[b].size {
			return hits[a].size < hits[b].size
		}
		return hits[a].id < hits[b].id
	})

	out := make([]Result, 0, min(k, len(hits)))
	for _, h := range hits[:min(k, len(hits))] {
		out = append(out, Result{ID: h.id, Score: h.score})
	}
	return out
}

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*|\p{N}+`)

// tokens folds s and splits it into words, in order, minus stopwords.
func tokens(s string, stop map[string]struct{}) []string {
	words := wordRE.FindAllString(Fold(s), -1)
	out := words[:0]
	for _, w := range words {
		if _, skip := stop[w]; !skip {
			out = append(out, w)
		}
	}
	return out
}

func set(ws []string) map[string]struct{} {
	m := make(map[string]struct{}, len(ws))
	for _, w := range ws {
		m[w] = struct{}{}
	}
	return m
}

func uniq(ws []string) []string {
	seen := make(map[string]struct{}, len(ws))
	out := ws[:0]
	for _, w := range ws {
		if _, ok := seen[w]; !ok {
			seen[w] = struct{}{}
			out = append(out, w)
		}
	}
	return out
}
