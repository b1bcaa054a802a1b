package recommend

import (
	"strings"
)

// Reranker applies Maximal Marginal Relevance over the final list,
// trading a little relevance for genre diversity:
//
//	MMR = argmax[lambda * score(i) - (1-lambda) * max(sim(i, s)) for s in selected]
//
// Similarity between two results is the Jaccard overlap of their genre
// sets. Disabled by default because it reorders the deterministic
// score-based ranking.
type Reranker struct {
	lambda float64
}

// NewReranker clamps lambda into [0,1]. 1 is pure relevance, 0 pure
// diversity.
func NewReranker(lambda float64) *Reranker {
	if lambda < 0 {
		lambda = 0
	}
	if lambda > 1 {
		lambda = 1
	}
	return &Reranker{lambda: lambda}
}

// Rerank greedily reorders items, keeping at most k.
func (r *Reranker) Rerank(items []Recommendation, k int) []Recommendation {
	if len(items) == 0 || k <= 0 {
		return items
	}
	if k > len(items) {
		k = len(items)
	}
	if r.lambda >= 1 {
		return items[:k]
	}

	n := len(items)
	sims := make([][]float64, n)
	for i := range sims {
		sims[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			s := genreJaccard(items[i].Genres, items[j].Genres)
			sims[i][j] = s
			sims[j][i] = s
		}
	}

	selected := make([]Recommendation, 0, k)
	taken := make([]bool, n)
	takenIdx := make([]int, 0, k)

	for len(selected) < k {
		bestIdx := -1
		bestScore := 0.0
		for i := range items {
			if taken[i] {
				continue
			}
			maxSim := 0.0
			for _, j := range takenIdx {
				if sims[i][j] > maxSim {
					maxSim = sims[i][j]
				}
			}
			score := r.lambda*items[i].FinalScore - (1-r.lambda)*maxSim
			if bestIdx < 0 || score > bestScore {
				bestIdx = i
				bestScore = score
			}
		}
		if bestIdx < 0 {
			break
		}
		taken[bestIdx] = true
		takenIdx = append(takenIdx, bestIdx)
		selected = append(selected, items[bestIdx])
	}
	return selected
}

func genreJaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(a))
	for _, g := range a {
		setA[strings.ToLower(g)] = struct{}{}
	}
	intersection := 0
	setB := make(map[string]struct{}, len(b))
	for _, g := range b {
		key := strings.ToLower(g)
		if _, dup := setB[key]; dup {
			continue
		}
		setB[key] = struct{}{}
		if _, ok := setA[key]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
