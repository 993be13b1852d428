// Package events fans task transition events out to consumers.
//
// The broker bridges the task graph's synchronous listener callbacks onto
// buffered subscriber channels, and optionally mirrors every event to a
// NATS subject so external dashboards can follow a run without polling.
package events
