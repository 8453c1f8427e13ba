// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tfidf implements a small TF-IDF index with cosine similarity,
// used for skill selection and semantic memory retrieval. Corpora are tiny
// (tens of documents), so everything is kept in memory and rebuilt on change.
package tfidf

import (
	"math"
	"strings"
	"unicode"
)

// Index is a TF-IDF index over a fixed document set.
type Index struct {
	docs    []map[string]float64 // per-document TF-IDF vectors
	idf     map[string]float64
	nDocs   int
	docToks [][]string
}

// New builds an index over the given documents. Each document is free text;
// tokenization lower-cases, strips accents and splits on non-alphanumerics.
func New(documents []string) *Index {
	idx := &Index{nDocs: len(documents), idf: make(map[string]float64)}

	df := make(map[string]int)
	tokenized := make([][]string, len(documents))
	for i, doc := range documents {
		toks := Tokenize(doc)
		tokenized[i] = toks
		seen := make(map[string]bool)
		for _, t := range toks {
			if !seen[t] {
				seen[t] = true
				df[t]++
			}
		}
	}
	idx.docToks = tokenized

	for term, count := range df {
		// Smoothed IDF keeps single-document corpora from zeroing out.
		idx.idf[term] = math.Log(float64(idx.nDocs+1)/float64(count+1)) + 1
	}

	idx.docs = make([]map[string]float64, len(documents))
	for i, toks := range tokenized {
		idx.docs[i] = idx.vectorize(toks)
	}

	return idx
}

// vectorize builds a normalized TF-IDF vector from tokens.
func (idx *Index) vectorize(toks []string) map[string]float64 {
	if len(toks) == 0 {
		return nil
	}

	tf := make(map[string]float64)
	for _, t := range toks {
		tf[t]++
	}

	vec := make(map[string]float64, len(tf))
	var norm float64
	for term, count := range tf {
		idf, ok := idx.idf[term]
		if !ok {
			continue
		}
		w := (count / float64(len(toks))) * idf
		vec[term] = w
		norm += w * w
	}
	if norm == 0 {
		return nil
	}
	norm = math.Sqrt(norm)
	for term := range vec {
		vec[term] /= norm
	}
	return vec
}

// Similarity returns the cosine similarity between the query text and
// document i. Returns 0 when either vector is empty.
func (idx *Index) Similarity(query string, i int) float64 {
	if i < 0 || i >= idx.nDocs {
		return 0
	}
	qvec := idx.vectorize(Tokenize(query))
	return cosine(qvec, idx.docs[i])
}

// Similarities returns cosine similarity against every document.
func (idx *Index) Similarities(query string) []float64 {
	qvec := idx.vectorize(Tokenize(query))
	out := make([]float64, idx.nDocs)
	for i := range idx.docs {
		out[i] = cosine(qvec, idx.docs[i])
	}
	return out
}

// Empty reports whether the index has no usable vocabulary. Callers fall
// back to Jaccard similarity in that case.
func (idx *Index) Empty() bool {
	return idx.nDocs == 0 || len(idx.idf) == 0
}

func cosine(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	// Iterate over the smaller vector.
	if len(b) < len(a) {
		a, b = b, a
	}
	var dot float64
	for term, wa := range a {
		if wb, ok := b[term]; ok {
			dot += wa * wb
		}
	}
	return dot
}

// Jaccard returns the Jaccard similarity between the token sets of two
// texts. Used as a fallback when the TF-IDF corpus is too small.
func Jaccard(a, b string) float64 {
	sa := tokenSet(Tokenize(a))
	sb := tokenSet(Tokenize(b))
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}
	inter := 0
	for t := range sa {
		if sb[t] {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func tokenSet(toks []string) map[string]bool {
	set := make(map[string]bool, len(toks))
	for _, t := range toks {
		set[t] = true
	}
	return set
}

// Tokenize lower-cases, strips accents and splits text on
// non-alphanumeric runes. Tokens shorter than 2 runes are dropped.
func Tokenize(text string) []string {
	norm := Normalize(text)
	fields := strings.FieldsFunc(norm, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) >= 2 {
			out = append(out, f)
		}
	}
	return out
}

// Normalize lower-cases text and strips the Latin accents that show up in
// Spanish task descriptions, so "función" and "funcion" match.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch r {
		case 'á', 'à', 'ä', 'â':
			b.WriteRune('a')
		case 'é', 'è', 'ë', 'ê':
			b.WriteRune('e')
		case 'í', 'ì', 'ï', 'î':
			b.WriteRune('i')
		case 'ó', 'ò', 'ö', 'ô':
			b.WriteRune('o')
		case 'ú', 'ù', 'ü', 'û':
			b.WriteRune('u')
		case 'ñ':
			b.WriteRune('n')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
