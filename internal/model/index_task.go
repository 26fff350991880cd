package model

// IndexTask is the queue payload asking a worker to index one document.
type IndexTask struct {
	DocumentID string `json:"document_id"`
}
