package models

// Upload states of a document blob.
const (
	UploadPending   = "pending"
	UploadCompleted = "completed"
)

// Document indexes an opaque binary blob (rich field content merged by an
// external subsystem) by owner and entity. The bytes live in object storage.
type Document struct {
	Envelope
	UserID     string     `json:"userId"`
	EntityType EntityType `json:"entityType"`
	EntityID   string     `json:"entityId"`
	// StorageKey is the object-storage key of the blob. Assigned by the server.
	StorageKey string `json:"storageKey,omitempty"`
	// UploadStatus tracks the blob upload ("pending", "completed").
	UploadStatus string `json:"uploadStatus,omitempty"`
	// DownloadURL is a presigned GET URL filled in on pull.
	DownloadURL string `json:"downloadUrl,omitempty"`
}

// DocumentUploadTask instructs the client to upload a blob using a presigned URL.
type DocumentUploadTask struct {
	DocumentID string `json:"documentId"`
	URL        string `json:"url"`
}
