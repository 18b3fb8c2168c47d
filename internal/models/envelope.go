package models

import (
	"time"
)

// ReadingEnvelope wraps a persisted Reading with internal metadata for the
// downstream export stream.
type ReadingEnvelope struct {
	// Persisted reading
	Reading *Reading `json:"reading"`

	// Internal processing metadata
	ReceivedAt   time.Time `json:"received_at"`
	IngestNode   string    `json:"ingest_node"`
	PartitionKey string    `json:"partition_key"`
}

// NewReadingEnvelope creates a new envelope wrapping a reading
func NewReadingEnvelope(reading *Reading, ingestNode string) *ReadingEnvelope {
	return &ReadingEnvelope{
		Reading:      reading,
		ReceivedAt:   time.Now().UTC(),
		IngestNode:   ingestNode,
		PartitionKey: reading.DeviceID, // partition by device for ordering
	}
}
