// Package events publishes job lifecycle events to optional external
// transports.
//
// Publication is best effort and happens after the store transaction has
// committed; a failed publish never undoes a state change. Redis pub/sub
// carries wake-up hints so idle workers claim new work without waiting for
// their next poll, and a RabbitMQ topic exchange carries the full event
// stream for downstream consumers. With neither configured, New returns a
// no-op publisher.
package events
