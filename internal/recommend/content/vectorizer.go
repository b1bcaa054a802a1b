package content

import (
	"errors"
	"math"
	"sort"
)

// ErrVectorizationUnavailable signals a degenerate corpus: fewer than two
// non-empty documents, or an empty vocabulary after capping. Callers fall
// back to CF-only scoring; this is never a user-visible failure on its own.
var ErrVectorizationUnavailable = errors.New("content: vectorization unavailable")

// Vectorizer builds a TF-IDF vector space over one request's batch of
// feature documents. It holds only configuration and is safe for
// concurrent use; all per-request state lives in the returned VectorSpace.
type Vectorizer struct {
	maxVocabulary int
}

// NewVectorizer returns a vectorizer with the given vocabulary cap.
func NewVectorizer(maxVocabulary int) *Vectorizer {
	if maxVocabulary <= 0 {
		maxVocabulary = 5000
	}
	return &Vectorizer{maxVocabulary: maxVocabulary}
}

// VectorSpace holds L2-normalized TF-IDF vectors for a query and its
// candidates. Request-scoped.
type VectorSpace struct {
	query      sparseVector
	candidates map[int]sparseVector
}

type sparseVector map[string]float64

// Vectorize builds the joint vocabulary (unigrams plus within-segment
// bigrams, capped at the maxVocabulary most frequent terms) and produces
// one normalized vector per document.
func (v *Vectorizer) Vectorize(query Document, candidates []Document) (*VectorSpace, error) {
	docs := make([]Document, 0, len(candidates)+1)
	docs = append(docs, query)
	docs = append(docs, candidates...)

	nonEmpty := 0
	freqs := make([]map[string]float64, len(docs))
	for i, doc := range docs {
		freqs[i] = termFrequencies(doc)
		if len(freqs[i]) > 0 {
			nonEmpty++
		}
	}
	if nonEmpty < 2 {
		return nil, ErrVectorizationUnavailable
	}

	vocab := v.buildVocabulary(freqs)
	if len(vocab) == 0 {
		return nil, ErrVectorizationUnavailable
	}

	// Smooth IDF: ln((1+n)/(1+df)) + 1. Keeps every vocabulary term
	// strictly positive so single-document terms still contribute.
	n := float64(len(docs))
	idf := make(map[string]float64, len(vocab))
	for term, df := range vocab {
		idf[term] = math.Log((1+n)/(1+float64(df))) + 1
	}

	space := &VectorSpace{candidates: make(map[int]sparseVector, len(candidates))}
	for i, doc := range docs {
		vec := make(sparseVector)
		var norm float64
		for term, tf := range freqs[i] {
			w, ok := idf[term]
			if !ok {
				continue
			}
			weight := tf * w
			vec[term] = weight
			norm += weight * weight
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for term := range vec {
				vec[term] /= norm
			}
		}
		if i == 0 {
			space.query = vec
		} else {
			space.candidates[doc.ID] = vec
		}
	}
	return space, nil
}

// termFrequencies accumulates weighted unigram and bigram frequencies for
// one document. Each segment's weight multiplies its terms; bigrams carry
// the segment weight and never cross a segment boundary.
func termFrequencies(doc Document) map[string]float64 {
	tf := make(map[string]float64)
	for _, seg := range doc.Segments {
		for i, tok := range seg.Tokens {
			tf[tok] += seg.Weight
			if i > 0 {
				tf[seg.Tokens[i-1]+" "+tok] += seg.Weight
			}
		}
	}
	return tf
}

// buildVocabulary returns term -> document frequency, retaining only the
// maxVocabulary terms with the highest total weighted frequency across
// the batch. Ties break on the term itself so the cut is deterministic.
func (v *Vectorizer) buildVocabulary(freqs []map[string]float64) map[string]int {
	df := make(map[string]int)
	total := make(map[string]float64)
	for _, tf := range freqs {
		for term, w := range tf {
			df[term]++
			total[term] += w
		}
	}
	if len(df) <= v.maxVocabulary {
		return df
	}

	terms := make([]string, 0, len(total))
	for term := range total {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if total[terms[i]] != total[terms[j]] {
			return total[terms[i]] > total[terms[j]]
		}
		return terms[i] < terms[j]
	})

	kept := make(map[string]int, v.maxVocabulary)
	for _, term := range terms[:v.maxVocabulary] {
		kept[term] = df[term]
	}
	return kept
}

// Similarity returns the cosine similarity between the query and a
// candidate. Vectors are unit length, so this is a dot product. Unknown
// candidates score 0.
func (s *VectorSpace) Similarity(candidateID int) float64 {
	vec, ok := s.candidates[candidateID]
	if !ok {
		return 0
	}
	// Iterate the smaller vector.
	a, b := s.query, vec
	if len(b) < len(a) {
		a, b = b, a
	}
	var dot float64
	for term, w := range a {
		dot += w * b[term]
	}
	// Float error can nudge past the bounds.
	switch {
	case dot < 0:
		return 0
	case dot > 1:
		return 1
	}
	return dot
}
