package chunkstore

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a stored object.
type Status string

const (
	StatusOpen      Status = "open"
	StatusFinalized Status = "finalized"
)

// Compression names the encoding applied to chunk payloads.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
)

// Metadata ties an object to the request and employee that produced it.
type Metadata struct {
	RequestID  uuid.UUID         `json:"request_id"`
	UploaderID uuid.UUID         `json:"uploader_id"`
	SizeBytes  int64             `json:"size_bytes"`
	MimeType   string            `json:"mime_type"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Object describes one stored binary document.
type Object struct {
	ID          uuid.UUID   `json:"id"`
	Filename    string      `json:"filename"`
	ContentType string      `json:"content_type"`
	Length      int64       `json:"length"`
	ChunkSize   int         `json:"chunk_size"`
	ChunkCount  int         `json:"chunk_count"`
	Checksum    string      `json:"checksum,omitempty"`
	Compression Compression `json:"compression"`
	Status      Status      `json:"status"`
	Metadata    Metadata    `json:"metadata"`
	CreatedAt   time.Time   `json:"created_at"`
	FinalizedAt *time.Time  `json:"finalized_at,omitempty"`
}

// Finalized reports whether the object is readable.
func (o Object) Finalized() bool {
	return o.Status == StatusFinalized
}

// Chunk is one sequence-numbered slice of an object. Size is the raw length;
// Data holds the encoded payload.
type Chunk struct {
	ObjectID uuid.UUID
	Seq      int
	Size     int
	Data     []byte
}

// ChunkStats summarizes what a backend holds for one object. MaxSeq is -1 when
// no chunk has been written.
type ChunkStats struct {
	Count    int
	MaxSeq   int
	RawBytes int64
}

// Finalization carries the values sealed into an object by Finalize.
type Finalization struct {
	Length     int64
	ChunkCount int
	Checksum   string
	At         time.Time
}
