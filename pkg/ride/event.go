package ride

import (
	"time"
)

// Event is published to the ride-events queue for every lifecycle change, so
// operational consumers can follow along without tailing logs.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Body      interface{}
}

type EventType string

const (
	EventTypeRideRegistered EventType = "RideRegistered"

	EventTypeRideCancelled EventType = "RideCancelled"
	EventTypeRideExpired   EventType = "RideExpired"
	EventTypeDelayNotified EventType = "DelayNotified"
)
