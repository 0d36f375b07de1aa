package ride

import (
	"fmt"
	"time"
)

// RouteStatus is a live snapshot of a tracked route as reported by the
// upstream rail data provider.
type RouteStatus struct {
	ServiceRef string

	Cancelled    bool
	DelayMinutes int
	Platform     string

	EstimatedDeparture time.Time

	RetrievedAt time.Time
}

// NotificationID collapses the snapshot into the identifier compared against
// a ride's LastNotificationID. Two snapshots that would produce the same user
// facing notification share an id.
func (s *RouteStatus) NotificationID() string {
	if s.Cancelled {
		return "CANCELLED"
	}

	return fmt.Sprintf("DELAY:%d:PLATFORM:%s", s.DelayMinutes, s.Platform)
}

// OnTimeNotificationID is the id of an undisturbed journey. Rides start out
// with it so an on-time first poll stays silent.
func OnTimeNotificationID() string {
	onTime := RouteStatus{}
	return onTime.NotificationID()
}

// BuildNotification renders the user facing push content for a status change.
func (s *RouteStatus) BuildNotification(route Route) NotificationData {
	departureTimeText := route.DepartureTime.Format("15:04")

	if s.Cancelled {
		return NotificationData{
			Title:   "Journey cancelled",
			Message: fmt.Sprintf("The %s to %s from %s has been cancelled.", departureTimeText, route.DestinationName, route.OriginName),
		}
	}

	if s.DelayMinutes > 0 {
		data := NotificationData{
			Title:   "Delay Update",
			Message: fmt.Sprintf("The %s to %s from %s is running %d minutes late.", departureTimeText, route.DestinationName, route.OriginName, s.DelayMinutes),
		}

		if !s.EstimatedDeparture.IsZero() {
			data.Message = fmt.Sprintf("%s It is now expected to depart at %s.", data.Message, s.EstimatedDeparture.Format("15:04"))
		}

		return data
	}

	if s.Platform != "" {
		return NotificationData{
			Title:   "Platform Update",
			Message: fmt.Sprintf("The %s service to %s from %s will depart from platform %s", departureTimeText, route.DestinationName, route.OriginName, s.Platform),
		}
	}

	return NotificationData{
		Title:   "Journey Update",
		Message: fmt.Sprintf("The %s to %s from %s is back on time.", departureTimeText, route.DestinationName, route.OriginName),
	}
}
