package vectorstore

import "context"

// Point is a scored payload returned from a similarity search.
type Point struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// Condition matches a payload field against an exact value.
type Condition struct {
	Field string
	Value any
}

// Filter combines conditions; Must are ANDed, Should are ORed.
type Filter struct {
	Must   []Condition
	Should []Condition
}

type SearchRequest struct {
	Collection     string
	Vector         []float32
	Filter         *Filter
	Limit          int
	ScoreThreshold float64
}

// Store is the similarity-search surface the pipeline depends on.
type Store interface {
	Search(ctx context.Context, req SearchRequest) ([]Point, error)
	GetAll(ctx context.Context, collection string, filter *Filter) ([]Point, error)
}
