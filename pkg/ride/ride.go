package ride

import (
	"time"
)

type Platform string

const (
	PlatformApple   Platform = "apple"
	PlatformAndroid Platform = "android"
)

// Ride is a user's actively tracked train journey. One record exists in the
// rides collection for as long as a delay poller is armed for it.
type Ride struct {
	PrimaryIdentifier string `groups:"basic"`

	Token    string   `groups:"internal"`
	Platform Platform `groups:"basic"`

	Route Route `groups:"basic"`

	// LastNotificationID is the delay state last communicated to the device.
	// It only ever advances, never regresses.
	LastNotificationID string `groups:"detailed"`

	CreationDateTime     time.Time `groups:"detailed"`
	ModificationDateTime time.Time `groups:"detailed"`
}

// Route is the planned journey snapshot, immutable once registered.
type Route struct {
	ServiceRef string `groups:"basic"`

	OriginStopRef   string `groups:"basic"`
	OriginName      string `groups:"basic"`
	DestinationRef  string `groups:"basic"`
	DestinationName string `groups:"basic"`

	DepartureTime time.Time `groups:"basic"`
	ArrivalTime   time.Time `groups:"basic"`

	Legs []RouteLeg `groups:"detailed"`
}

type RouteLeg struct {
	TrainRef string `groups:"detailed"`

	OriginStopRef  string `groups:"detailed"`
	DestinationRef string `groups:"detailed"`

	DepartureTime time.Time `groups:"detailed"`
	ArrivalTime   time.Time `groups:"detailed"`
}

type Eligibility string

const (
	EligibilityOK       Eligibility = "OK"
	EligibilityInPast               = "InPast"
	EligibilityInFuture             = "InFuture"
)

// CheckEligibility decides whether a ride can be scheduled at all. Departures
// already in the past get deleted rather than tracked, and departures beyond
// the scheduling window are refused until they come closer.
func (r *Ride) CheckEligibility(now time.Time, maxFutureWindow time.Duration) Eligibility {
	if r.Route.DepartureTime.Before(now) {
		return EligibilityInPast
	}

	if r.Route.DepartureTime.After(now.Add(maxFutureWindow)) {
		return EligibilityInFuture
	}

	return EligibilityOK
}

// Expired reports whether the journey has fully elapsed and the poller should
// tear itself down.
func (r *Ride) Expired(now time.Time, graceWindow time.Duration) bool {
	return now.After(r.Route.ArrivalTime.Add(graceWindow))
}
