// Package ingest implements the per-event entrypoint the webhook receiver
// calls for each already-filtered, already-geofenced event: it normalizes
// the untyped payload into a typed struct per entity family and hands it to
// the out-of-scope time-series updaters and the matching staging buffer.
package ingest

import "errors"

var (
	// ErrMissingType is returned when a raw event carries no "type" field,
	// mirroring process_single_event's "Missing 'type'" guard.
	ErrMissingType = errors.New("ingest: missing event type")

	// ErrUnknownEventType names a "type" value Dispatch has no branch for.
	// Dispatch does not return it: it reports such an event with a Summary
	// whose Status is "ignored".
	ErrUnknownEventType = errors.New("ingest: unknown event type")

	// ErrMissingField is returned by a normalize function when a required
	// key is absent or has the wrong shape.
	ErrMissingField = errors.New("ingest: missing or invalid field")

	// ErrUnknownQuestKind is returned when a quest event's "kind" is
	// neither 0 (item reward) nor 1 (pokemon reward).
	ErrUnknownQuestKind = errors.New("ingest: unknown quest kind")
)
