package classify

import (
	"encoding/json"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"
)

// DefaultScoreThreshold is the minimum fuzzy score for a token to be
// accepted as a known term.
const DefaultScoreThreshold = 80

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	wordGroupRe  = regexp.MustCompile(`\b\w+(?:\s+\w+)*\b`)
)

// PriorityTable maps known terms to their rank; lower rank means higher
// priority. It doubles as the resolver's fuzzy-match vocabulary.
type PriorityTable map[string]int

// LoadPriorityTable reads the term->rank config. A missing file, malformed
// JSON, or a non-integer rank all degrade to an empty table: the resolver
// then recognizes nothing, but the pipeline keeps running.
func LoadPriorityTable(path string) PriorityTable {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("priority config unavailable, using empty table", "path", path, "error", err)
		return PriorityTable{}
	}
	var table PriorityTable
	if err := json.Unmarshal(data, &table); err != nil {
		slog.Warn("priority config invalid, using empty table", "path", path, "error", err)
		return PriorityTable{}
	}
	return table
}

// Resolver normalizes raw detection-label text into a sequence of known
// vocabulary terms.
type Resolver struct {
	priorities   PriorityTable
	vocabulary   []string
	scorer       Scorer
	threshold    int
	maxTermWords int
}

func NewResolver(priorities PriorityTable, scorer Scorer, threshold int) *Resolver {
	// A stable vocabulary order keeps fuzzy tie-breaks deterministic:
	// rank first, then term.
	vocab := make([]string, 0, len(priorities))
	for term := range priorities {
		vocab = append(vocab, term)
	}
	sort.Slice(vocab, func(i, j int) bool {
		ri, rj := priorities[vocab[i]], priorities[vocab[j]]
		if ri != rj {
			return ri < rj
		}
		return vocab[i] < vocab[j]
	})
	if threshold <= 0 {
		threshold = DefaultScoreThreshold
	}
	maxWords := 1
	for _, term := range vocab {
		if n := len(strings.Fields(term)); n > maxWords {
			maxWords = n
		}
	}
	return &Resolver{
		priorities:   priorities,
		vocabulary:   vocab,
		scorer:       scorer,
		threshold:    threshold,
		maxTermWords: maxWords,
	}
}

// Resolve collapses whitespace, lowercases, splits the input into
// word-group tokens, and fuzzy-matches each token against the vocabulary.
// Tokens below the score threshold are dropped (logged, non-fatal).
// Immediately-adjacent duplicate matches collapse to one; duplicates
// elsewhere in the sequence survive.
func (r *Resolver) Resolve(raw string) []string {
	normalized := whitespaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(raw)), " ")
	if normalized == "" || len(r.vocabulary) == 0 {
		return nil
	}

	var accepted []string
	for _, group := range wordGroupRe.FindAllString(normalized, -1) {
		words := strings.Fields(group)
		for i := 0; i < len(words); {
			match, consumed := r.matchAt(words, i)
			if consumed == 0 {
				slog.Warn("no vocabulary match for token", "token", words[i])
				i++
				continue
			}
			if n := len(accepted); n == 0 || accepted[n-1] != match {
				accepted = append(accepted, match)
			}
			i += consumed
		}
	}
	return accepted
}

// matchAt finds the longest word run starting at i that clears the score
// threshold against the vocabulary. A word-group like "street light car
// accident" thus resolves to both terms rather than one fuzzy blur.
func (r *Resolver) matchAt(words []string, i int) (string, int) {
	run := r.maxTermWords
	if rem := len(words) - i; rem < run {
		run = rem
	}
	for n := run; n >= 1; n-- {
		candidate := strings.Join(words[i:i+n], " ")
		if match, score := r.bestMatch(candidate); score >= r.threshold {
			return match, n
		}
	}
	return "", 0
}

func (r *Resolver) bestMatch(token string) (string, int) {
	best, bestScore := "", -1
	for _, term := range r.vocabulary {
		if score := r.scorer.Score(token, term); score > bestScore {
			best, bestScore = term, score
		}
	}
	return best, bestScore
}

// HighestPriority returns the recognized term with the minimum rank.
// Ties on rank resolve to the first such term in input order; that
// tie-break is part of the contract, not an accident. ok is false when no
// input term is in the table.
func (r *Resolver) HighestPriority(terms []string) (string, bool) {
	best, bestRank, found := "", 0, false
	for _, term := range terms {
		rank, ok := r.priorities[term]
		if !ok {
			continue
		}
		if !found || rank < bestRank {
			best, bestRank, found = term, rank, true
		}
	}
	return best, found
}

// Process is the full resolution pipeline for free text.
func (r *Resolver) Process(raw string) (string, bool) {
	return r.HighestPriority(r.Resolve(raw))
}
