package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/news-downloader/internal/crawler"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageBatchStart  Stage = "BATCH_START"
	StageBatchDone   Stage = "BATCH_DONE"
	StageWorkerStart Stage = "WORKER_START"
	StageWorkerDone  Stage = "WORKER_DONE"
	StageWorkerError Stage = "WORKER_ERROR"
	StageURLDone     Stage = "URL_DONE"
)

// Event captures a single milestone of a download batch.
type Event struct {
	// BatchID identifies the batch using the 16-byte UUID form.
	BatchID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Worker is the zero-based worker index for worker and URL events.
	Worker int
	// URL is the original input URL for URL events.
	URL string
	// Site is the lowercase host of URL.
	Site string
	// Status is the terminal result status of a URL event.
	Status crawler.Status
	// Total is the number of URLs covered by a batch or worker event.
	Total int
	// Dur captures elapsed time for URLs, workers, and batches.
	Dur time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.BatchID == [16]byte{} {
		return errors.New("batch id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageBatchStart, StageBatchDone, StageWorkerStart, StageWorkerDone:
	case StageWorkerError:
		if e.Note == "" {
			return errors.New("worker error requires a note")
		}
	case StageURLDone:
		if e.URL == "" {
			return errors.New("url done requires url")
		}
		if e.Status == "" {
			return errors.New("url done requires status")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// BatchUUID converts the binary batch ID to uuid.UUID.
func (e Event) BatchUUID() uuid.UUID {
	return uuid.UUID(e.BatchID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
