package dto

import "time"

// BufferedSnapshot holds an alert frame before it is flushed to disk.
type BufferedSnapshot struct {
	EventID   int64
	Timestamp time.Time
	Data      []byte
}
