package vectordb

import (
	"math"
	"sort"
)

// Float32s converts a Vector ([]float64) to []float32.
// ChromeM, Milvus and Qdrant store float32 vectors.
func Float32s(v []float64) []float32 {
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = float32(val)
	}
	return result
}

func Float64s(v []float32) []float64 {
	result := make([]float64, len(v))
	for i, val := range v {
		result[i] = float64(val)
	}
	return result
}

// Cosine returns the cosine similarity of a and b in [-1, 1].
// Mismatched lengths and zero vectors score 0.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Rank sorts records by non-increasing score keeping the given order for
// ties, drops those under minScore and keeps at most topK.
func Rank(records []Record, topK int, minScore float64) []Record {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Score > records[j].Score
	})
	ret := records[:0]
	for _, r := range records {
		if minScore != 0 && r.Score < minScore {
			continue
		}
		ret = append(ret, r)
		if topK > 0 && len(ret) == topK {
			break
		}
	}
	return ret
}
