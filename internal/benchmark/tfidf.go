package benchmark

import (
	"math"
	"strings"
)

// CosineSimilarity computes TF-IDF cosine similarity between two
// texts: unigrams over unicode word tokens, no stop words, smoothed
// idf, l2-normalized vectors. Multilingual titles keep all tokens.
func CosineSimilarity(a, b string) float64 {
	tokensA := wordPattern.FindAllString(strings.ToLower(a), -1)
	tokensB := wordPattern.FindAllString(strings.ToLower(b), -1)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	countsA := termCounts(tokensA)
	countsB := termCounts(tokensB)

	vocabulary := make(map[string]struct{}, len(countsA)+len(countsB))
	for term := range countsA {
		vocabulary[term] = struct{}{}
	}
	for term := range countsB {
		vocabulary[term] = struct{}{}
	}

	// Smoothed idf over the two-document corpus: ln((1+n)/(1+df)) + 1.
	const documents = 2
	var dot, normA, normB float64
	for term := range vocabulary {
		df := 0
		if countsA[term] > 0 {
			df++
		}
		if countsB[term] > 0 {
			df++
		}
		idf := math.Log(float64(1+documents)/float64(1+df)) + 1
		weightA := float64(countsA[term]) * idf
		weightB := float64(countsB[term]) * idf
		dot += weightA * weightB
		normA += weightA * weightA
		normB += weightB * weightB
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func termCounts(tokens []string) map[string]int {
	counts := make(map[string]int, len(tokens))
	for _, token := range tokens {
		counts[token]++
	}
	return counts
}

// HybridScore blends the LLM score with the cosine score, rounded to
// four decimals. Weights that do not sum to one are normalized.
func HybridScore(llmScore, cosineScore, llmWeight, cosineWeight float64) float64 {
	total := llmWeight + cosineWeight
	if total <= 0 {
		return 0
	}
	hybrid := (llmWeight*llmScore + cosineWeight*cosineScore) / total
	return math.Round(hybrid*10000) / 10000
}
