// Package lexical provides keyword scoring over retrieval candidates using
// BM25, complementing vector similarity in hybrid retrieval.
package lexical

import (
	"math"
	"strings"
)

// BM25 tuning constants. k1 controls term-frequency saturation, b controls
// document-length normalization.
const (
	k1 = 1.2
	b  = 0.75
)

// Tokenize splits a string into lowercase word tokens.
// Word characters are letters, digits, and underscores.
func Tokenize(s string) []string {
	words := make([]string, 0)
	var current strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			current.WriteRune(r)
		} else if current.Len() > 0 {
			words = append(words, strings.ToLower(current.String()))
			current.Reset()
		}
	}
	if current.Len() > 0 {
		words = append(words, strings.ToLower(current.String()))
	}
	return words
}

// Document is one scorable candidate.
type Document struct {
	ID   string
	Text string
}

// Index holds tokenized documents and corpus statistics for BM25 scoring.
// An index is built once per query over the candidate universe; it is not a
// persistent structure.
type Index struct {
	docs   []Document
	tokens [][]string
	df     map[string]int
	avgLen float64
}

// NewIndex tokenizes the candidate documents and computes corpus statistics.
func NewIndex(docs []Document) *Index {
	idx := &Index{
		docs:   docs,
		tokens: make([][]string, len(docs)),
		df:     make(map[string]int),
	}

	totalLen := 0
	for i, d := range docs {
		toks := Tokenize(d.Text)
		idx.tokens[i] = toks
		totalLen += len(toks)

		seen := make(map[string]bool)
		for _, t := range toks {
			if !seen[t] {
				idx.df[t]++
				seen[t] = true
			}
		}
	}
	if len(docs) > 0 {
		idx.avgLen = float64(totalLen) / float64(len(docs))
	}
	return idx
}

// Score returns BM25 scores per document ID for the given query. Documents
// with no matching terms score 0.
func (idx *Index) Score(query string) map[string]float64 {
	scores := make(map[string]float64, len(idx.docs))
	queryTokens := Tokenize(query)
	if len(queryTokens) == 0 || len(idx.docs) == 0 {
		return scores
	}

	n := float64(len(idx.docs))
	for i, d := range idx.docs {
		docLen := float64(len(idx.tokens[i]))

		tf := make(map[string]int, len(idx.tokens[i]))
		for _, t := range idx.tokens[i] {
			tf[t]++
		}

		var score float64
		for _, q := range queryTokens {
			f := float64(tf[q])
			if f == 0 {
				continue
			}
			df := float64(idx.df[q])
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			denom := f + k1*(1-b+b*docLen/idx.avgLen)
			score += idf * (f * (k1 + 1)) / denom
		}
		if score > 0 {
			scores[d.ID] = score
		}
	}
	return scores
}

// CoverageRatio returns the fraction of distinct query tokens present in the
// text, used as a cheap cross-scoring signal during reranking.
func CoverageRatio(query, text string) float64 {
	queryTokens := Tokenize(query)
	if len(queryTokens) == 0 {
		return 0.0
	}

	distinct := make(map[string]bool)
	for _, t := range queryTokens {
		distinct[t] = true
	}

	textSet := make(map[string]bool)
	for _, t := range Tokenize(text) {
		textSet[t] = true
	}

	covered := 0
	for t := range distinct {
		if textSet[t] {
			covered++
		}
	}
	return float64(covered) / float64(len(distinct))
}
