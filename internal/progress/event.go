package progress

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageBatchStart  Stage = "BATCH_START"
	StageBatchDone   Stage = "BATCH_DONE"
	StageBatchError  Stage = "BATCH_ERROR"
	StageFetchDone   Stage = "FETCH_DONE"
	StageExtractDone Stage = "EXTRACT_DONE"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes tracked for fetch completions.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event captures a single milestone of harvest progress.
type Event struct {
	// BatchID identifies the owning batch using the 16-byte UUID form.
	BatchID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or per-entry milestone occurred.
	Stage Stage
	// Site scopes fetch and extract events to the publisher's host label.
	Site string
	// URL is the optional entry URL; it should not contain credentials.
	URL string
	// Strategy names the fetch strategy that produced the outcome,
	// including the feed-fallback pseudo-strategy.
	Strategy string
	// Bytes carries the response size delta for the fetch.
	Bytes int64
	// Entries increments by one for each entry reaching a terminal state.
	Entries int64
	// StatusClass groups HTTP response codes (2xx, 3xx, etc).
	StatusClass StatusClass
	// Dur captures execution latency for fetches and batch completions.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
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
	case StageBatchStart, StageBatchDone, StageBatchError:
	case StageFetchDone:
		if e.Site == "" {
			return errors.New("fetch done requires site")
		}
		if e.Strategy == "" {
			return errors.New("fetch done requires strategy")
		}
		if e.StatusClass == "" {
			return errors.New("fetch done requires status class")
		}
	case StageExtractDone:
		if e.Site == "" {
			return errors.New("extract done requires site")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// BatchUUID converts the binary batch ID to uuid.UUID for repositories.
func (e Event) BatchUUID() uuid.UUID {
	return uuid.UUID(e.BatchID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ParseBatchID converts the string batch ID used across the pipeline into the
// compact event form. ok is false for malformed IDs.
func ParseBatchID(batchID string) ([16]byte, bool) {
	id, err := uuid.Parse(batchID)
	if err != nil {
		return [16]byte{}, false
	}
	return UUIDToBytes(id), true
}

// ClassifyStatus groups HTTP status codes for fetch events.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}

// SiteOf normalizes an entry URL to the host label used for per-site stats.
func SiteOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "unknown"
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return "unknown"
	}
	return host
}
