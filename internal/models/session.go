package models

// SessionStatus represents the status of a document session.
type SessionStatus string

const (
	SessionStatusPending  SessionStatus = "pending"
	SessionStatusParsing  SessionStatus = "parsing"
	SessionStatusComplete SessionStatus = "complete"
	SessionStatusError    SessionStatus = "error"
)

// DocumentSession tracks loading one case or diff file into memory
// (or, for successive sessions, streaming it into a record store).
type DocumentSession struct {
	ID               string        `json:"id"`
	FileID           string        `json:"fileId"`
	Kind             DocumentKind  `json:"kind"`
	Successive       bool          `json:"successive,omitempty"`
	Status           SessionStatus `json:"status"`
	Progress         float64       `json:"progress"` // 0-100
	ElementCount     int           `json:"elementCount,omitempty"`
	RecordCount      int           `json:"recordCount,omitempty"`
	MatchedCount     int           `json:"matchedCount,omitempty"`
	ProcessingTimeMs int64         `json:"processingTimeMs,omitempty"`
	Errors           []string      `json:"errors,omitempty"`
}

// NewDocumentSession creates a new DocumentSession in pending status.
func NewDocumentSession(id, fileID string, kind DocumentKind) *DocumentSession {
	return &DocumentSession{
		ID:       id,
		FileID:   fileID,
		Kind:     kind,
		Status:   SessionStatusPending,
		Progress: 0,
		Errors:   make([]string, 0),
	}
}
