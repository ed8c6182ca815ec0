// Package scorer implements a deterministic vector embedding and cosine
// similarity function. It is intentionally explicit and reproducible
// rather than backed by an external model: the test suite must be able to
// regenerate identical vectors from the same text input.
//
// Grounded on the EmbeddingEngine interface shape and CosineSimilarity
// function in theRebelliousNerd-codenerd/internal/embedding/engine.go, but
// the engine itself is written from scratch — the teacher's Ollama/GenAI
// engines make a network call per embedding, which is the opposite of the
// byte-reproducible, side-effect-free behavior this package needs. That
// requirement is why this package has no third-party dependency: no library
// in the example pack offers a deterministic, hand-specified text embedding,
// so the formula is implemented directly against the standard library
// (math, strings) — see DESIGN.md.
package scorer

import (
	"math"
	"strings"
)

// Dimensions is the total embedding length stored on GiverProfile and
// HelpRequest.
const Dimensions = 1536

// tailDimensions is the width of the trailing textual-statistics block.
const tailDimensions = 64

// numCategories is the count of keyword-category blocks.
const numCategories = 8

// categoryDimensions is derived so that numCategories*categoryDimensions +
// tailDimensions == Dimensions exactly (184*8 + 64 = 1536). A literal "8
// keyword-category blocks of 192 dims each, plus a 64-dim tail" would total
// 1600, one dimension too many against the 1536 figure the embedding is
// stored under everywhere else (GiverProfile.Embedding,
// HelpRequest.Embedding). This package resolves the conflict in favor of
// the explicit 1536 total and shrinks the per-category block accordingly;
// see DESIGN.md Open Questions.
const categoryDimensions = (Dimensions - tailDimensions) / numCategories

var categories = [numCategories][]string{
	{"code", "music", "travel", "design", "startup", "hiking", "photography", "cooking", "gaming", "fitness"},
	{"books", "movies", "dancing", "art", "yoga", "wine", "coffee", "running", "climbing", "writing"},
	{"python", "guitar", "painting", "surfing", "meditation", "cycling", "fashion", "comedy", "theater", "science"},
	{"sports", "football", "basketball", "tennis", "swimming", "skiing", "camping", "nature", "animals", "pets"},
	{"food", "restaurants", "baking", "gardening", "volunteering", "activism", "politics", "history", "languages", "anime"},
	{"business", "finance", "marketing", "entrepreneurship", "leadership", "teaching", "mentoring", "coaching", "therapy", "wellness"},
	{"family", "parenting", "relationships", "dating", "friendship", "community", "spirituality", "philosophy", "psychology", "mindfulness"},
	{"technology", "engineering", "mathematics", "robotics", "ai", "data", "security", "networks", "cloud", "devops"},
}

// Embed computes a deterministic 1536-dim embedding for text: each
// category dimension i is score*sin((i+1)*pi/categoryDimensions), where
// score sums count(keyword)*len(keyword)/10 over that category's keywords;
// the tail carries normalized textual statistics. The result is L2-normalized.
func Embed(text string) []float32 {
	lower := strings.ToLower(text)
	words := strings.Fields(lower)

	vec := make([]float64, Dimensions)

	for c, keywords := range categories {
		var score float64
		for _, kw := range keywords {
			count := strings.Count(lower, kw)
			if count == 0 {
				continue
			}
			score += float64(count) * float64(len(kw)) / 10.0
		}
		base := c * categoryDimensions
		for i := 0; i < categoryDimensions; i++ {
			vec[base+i] = score * math.Sin(float64(i+1)*math.Pi/float64(categoryDimensions))
		}
	}

	tail := textStatistics(lower, words)
	tailBase := numCategories * categoryDimensions
	for i := 0; i < tailDimensions && i < len(tail); i++ {
		vec[tailBase+i] = tail[i]
	}

	normalize(vec)

	out := make([]float32, Dimensions)
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out
}

// textStatistics fills the 64-dim tail with length, word count, and
// type-token ratio, repeated and phase-shifted across the tail the same way
// the category blocks spread a single score across many dimensions.
func textStatistics(lower string, words []string) []float64 {
	length := float64(len(lower))
	wordCount := float64(len(words))

	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		unique[w] = struct{}{}
	}
	typeTokenRatio := 0.0
	if wordCount > 0 {
		typeTokenRatio = float64(len(unique)) / wordCount
	}

	stats := []float64{length / 100.0, wordCount / 20.0, typeTokenRatio}
	tail := make([]float64, tailDimensions)
	for i := range tail {
		s := stats[i%len(stats)]
		tail[i] = s * math.Sin(float64(i+1)*math.Pi/float64(tailDimensions))
	}
	return tail
}

func normalize(vec []float64) {
	var sumSq float64
	for _, v := range vec {
		sumSq += v * v
	}
	if sumSq == 0 {
		return
	}
	norm := math.Sqrt(sumSq)
	for i := range vec {
		vec[i] /= norm
	}
}

// CosineSimilarity is the scorer's sole similarity function.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
