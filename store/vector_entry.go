package store

// VectorEntry is one embedded chunk inside a namespace of the vector index.
type VectorEntry struct {
	Namespace    string
	ID           string
	Vector       []float32
	MetadataText string
	CreatedTs    int64
}

// VectorMatch is a search hit with its cosine similarity.
type VectorMatch struct {
	ID           string
	MetadataText string
	Score        float64
}

type SearchVectorEntries struct {
	Namespace string
	Vector    []float32
	Limit     int
}

type DeleteVectorEntries struct {
	Namespace string
	IDPrefix  string
}
