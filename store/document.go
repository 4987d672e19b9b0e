package store

// Document is a user-uploaded text whose paragraphs are embedded for retrieval.
type Document struct {
	ID         string `json:"id"`
	Owner      string `json:"owner"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	ChunkCount int32  `json:"chunkCount"`
	CreatedTs  int64  `json:"createdAt"`
	UpdatedTs  int64  `json:"updatedAt"`
}

type FindDocument struct {
	ID    *string
	Owner *string
}

type UpdateDocument struct {
	Title      *string
	ChunkCount *int32
	UpdatedTs  *int64
	ID         string
}

type DeleteDocument struct {
	ID string
}
