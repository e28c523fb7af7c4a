package event

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidEvent is returned when an event is constructed with
// inconsistent fields. Invalid events never enter the buffer.
var ErrInvalidEvent = errors.New("event: invalid event")

// Layer identifies which cache tier an operation executed against.
type Layer string

const (
	LayerRemoteShared   Layer = "remote_shared"
	LayerLocalInProcess Layer = "local_in_process"
	LayerCombined       Layer = "combined"
)

// Layers lists every known cache layer, in reporting order.
var Layers = []Layer{LayerRemoteShared, LayerLocalInProcess, LayerCombined}

// Operation is the kind of cache operation observed.
type Operation string

const (
	OpGet         Operation = "get"
	OpSet         Operation = "set"
	OpDelete      Operation = "delete"
	OpInvalidate  Operation = "invalidate"
	OpClear       Operation = "clear"
	OpHealthCheck Operation = "health_check"
	OpBatchFlush  Operation = "batch_flush"
)

// Result is the outcome of a cache operation. Hit and Miss are
// meaningful only for Get; other operations report Success, Failure,
// Error, or Timeout.
type Result string

const (
	ResultHit     Result = "hit"
	ResultMiss    Result = "miss"
	ResultError   Result = "error"
	ResultTimeout Result = "timeout"
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
)

// IsFailure reports whether the result indicates an operation failure.
func (r Result) IsFailure() bool {
	return r == ResultError || r == ResultTimeout || r == ResultFailure
}

// Event records a single cache operation. Once recorded it is never
// mutated; Duration is fixed at construction so later reads are not
// affected by clock skew.
type Event struct {
	OperationID uuid.UUID     `json:"operation_id"`
	Operation   Operation     `json:"operation"`
	Layer       Layer         `json:"cache_layer"`
	KeyPattern  string        `json:"key_pattern"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     time.Time     `json:"end_time"`
	Duration    time.Duration `json:"duration"`
	Result      Result        `json:"result"`
	DataSize    int64         `json:"data_size_bytes"`

	// Metadata carries provider-specific context (e.g. raw driver
	// counters). The monitor never interprets its keys beyond
	// pass-through logging.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// New builds a validated event with a fresh operation ID.
// KeyPattern should be a normalized key template, never a raw key,
// to keep aggregation cardinality bounded.
func New(op Operation, layer Layer, keyPattern string, start, end time.Time, result Result, dataSize int64, metadata map[string]string) (Event, error) {
	if end.Before(start) {
		return Event{}, fmt.Errorf("%w: end_time %v before start_time %v", ErrInvalidEvent, end, start)
	}
	if dataSize < 0 {
		return Event{}, fmt.Errorf("%w: negative data_size_bytes %d", ErrInvalidEvent, dataSize)
	}
	return Event{
		OperationID: uuid.New(),
		Operation:   op,
		Layer:       layer,
		KeyPattern:  keyPattern,
		StartTime:   start,
		EndTime:     end,
		Duration:    end.Sub(start),
		Result:      result,
		DataSize:    dataSize,
		// Cloned so later caller mutations cannot reach buffered events.
		Metadata: maps.Clone(metadata),
	}, nil
}

// DurationMs returns the operation duration in milliseconds.
func (e Event) DurationMs() float64 {
	return float64(e.Duration) / float64(time.Millisecond)
}

// ParseLayer maps a provider-reported layer name to a Layer tag.
// Unrecognized names fall back to LayerCombined.
func ParseLayer(name string) Layer {
	switch name {
	case "remote_shared", "remote", "redis", "shared":
		return LayerRemoteShared
	case "local_in_process", "local", "memory", "in_process":
		return LayerLocalInProcess
	default:
		return LayerCombined
	}
}
