package models

import "time"

// DocumentKind classifies an XML file by its root tag.
type DocumentKind string

const (
	KindUnknown DocumentKind = "unknown"
	KindCase    DocumentKind = "case" // ASPENOLXDB snapshot
	KindDiff    DocumentKind = "diff" // ASPENOLX/OLXDIFF comparison
)

// FileInfo represents metadata about an uploaded file.
type FileInfo struct {
	ID         string       `json:"id" msgpack:"id"`
	Name       string       `json:"name" msgpack:"name"`
	Size       int64        `json:"size" msgpack:"size"`
	Kind       DocumentKind `json:"kind" msgpack:"kind"`
	UploadedAt time.Time    `json:"uploadedAt" msgpack:"uploadedAt"`
	Status     string       `json:"status" msgpack:"status"` // "uploaded", "loading", "loaded", "error"
}
