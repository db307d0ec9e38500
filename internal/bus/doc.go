// Package bus implements the gateway's in-memory pub/sub core: a fixed
// topic registry and a subscription table mapping each topic to its live
// subscribers.
//
// The topic set is closed once New returns — publishing or subscribing to
// an unregistered topic is refused, never auto-created. Events are
// transient: a broadcast reaches the subscribers connected at that moment
// and is then forgotten (at-most-once, no replay).
//
// Subscribers report delivery failure by returning ErrSubscriberDead from
// Send. A dead subscriber is swept out of every topic's set during the
// broadcast that detected it, since a dead transport can receive nothing.
package bus
