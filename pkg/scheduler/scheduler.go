package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/railwatch/railwatch/pkg/config"
	"github.com/railwatch/railwatch/pkg/ride"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

var (
	// ErrRideInPast is returned when a ride's departure has already happened.
	ErrRideInPast = errors.New("ride departure is in the past")
	// ErrRideInFuture is returned when a ride departs beyond the scheduling window.
	ErrRideInFuture = errors.New("ride departure is too far in the future")
)

// Store is the ride record persistence contract.
type Store interface {
	Get(ctx context.Context, rideID string) (*ride.Ride, error)
	GetAll(ctx context.Context) ([]*ride.Ride, error)
	Add(ctx context.Context, record *ride.Ride) error
	Delete(ctx context.Context, rideID string) error
	UpdateToken(ctx context.Context, rideID string, token string) error
	UpdateLastNotificationID(ctx context.Context, rideID string, notificationID string) error
}

// RouteSource fetches live status for a planned route.
type RouteSource interface {
	LookupStatus(ctx context.Context, route ride.Route) (*ride.RouteStatus, error)
}

// Dispatcher delivers a push notification to a device token.
type Dispatcher interface {
	Send(ctx context.Context, rideID string, token string, platform ride.Platform, data ride.NotificationData) error
}

// EventPublisher emits ride lifecycle events. Implementations must accept a
// nil receiver.
type EventPublisher interface {
	Publish(eventType ride.EventType, body interface{})
}

// RideScheduler owns the ride lifecycle: registration, cancellation, token
// updates and startup rehydration. All mutations for a given ride id pass
// through the registry, so concurrent register/cancel calls can never leave a
// dangling poller or an unpolled record.
type RideScheduler struct {
	Store      Store
	Routes     RouteSource
	Dispatcher Dispatcher
	Events     EventPublisher

	Config config.Scheduler

	registry *Registry

	// opMutex serialises the store+registry transition of every lifecycle
	// mutation, so register and cancel for the same ride cannot interleave.
	opMutex sync.Mutex

	now func() time.Time
}

func NewRideScheduler(rideStore Store, routes RouteSource, dispatcher Dispatcher, events EventPublisher, cfg config.Scheduler) *RideScheduler {
	return &RideScheduler{
		Store:      rideStore,
		Routes:     routes,
		Dispatcher: dispatcher,
		Events:     events,

		Config: cfg,

		registry: NewRegistry(),

		now: time.Now,
	}
}

func (s *RideScheduler) Registry() *Registry {
	return s.registry
}

// RegisterRide persists the ride and arms its delay poller. Ineligible rides
// are never persisted; a persistence failure never starts a poller.
func (s *RideScheduler) RegisterRide(ctx context.Context, record *ride.Ride) error {
	now := s.now()

	switch record.CheckEligibility(now, s.Config.MaxFutureWindow) {
	case ride.EligibilityInPast:
		log.Info().
			Str("event", "scheduler.rideInPast").
			Str("ride", record.PrimaryIdentifier).
			Time("departure", record.Route.DepartureTime).
			Msg("Ride departure already passed, not scheduling")

		// The record may exist from an earlier registration - clean it up
		// rather than track a dead journey.
		s.Store.Delete(ctx, record.PrimaryIdentifier)

		return ErrRideInPast
	case ride.EligibilityInFuture:
		log.Info().
			Str("event", "scheduler.rideInFuture").
			Str("ride", record.PrimaryIdentifier).
			Time("departure", record.Route.DepartureTime).
			Msg("Ride departure too far away, not scheduling")

		return ErrRideInFuture
	}

	if record.LastNotificationID == "" {
		record.LastNotificationID = ride.OnTimeNotificationID()
	}

	s.opMutex.Lock()
	defer s.opMutex.Unlock()

	if err := s.Store.Add(ctx, record); err != nil {
		log.Error().Err(err).Str("event", "registerRide.failed").Str("ride", record.PrimaryIdentifier).Msg("Failed to register ride")
		return err
	}

	s.armPoller(record.PrimaryIdentifier)

	log.Info().
		Str("event", "registerRide.success").
		Str("ride", record.PrimaryIdentifier).
		Time("departure", record.Route.DepartureTime).
		Msg("Registered ride")

	s.publish(ride.EventTypeRideRegistered, record)

	return nil
}

// CancelRide stops the poller and deletes the record. Idempotent - cancelling
// an unknown ride succeeds. A deletion failure after the poller stopped is
// surfaced, never swallowed.
func (s *RideScheduler) CancelRide(ctx context.Context, rideID string) error {
	s.opMutex.Lock()
	defer s.opMutex.Unlock()

	s.disarmPoller(rideID)

	if err := s.Store.Delete(ctx, rideID); err != nil {
		log.Error().Err(err).Str("event", "cancelRide.failed").Str("ride", rideID).Msg("Poller stopped but ride record deletion failed")
		return fmt.Errorf("ride %s poller stopped but record deletion failed: %w", rideID, err)
	}

	log.Info().Str("event", "cancelRide.success").Str("ride", rideID).Msg("Cancelled ride")

	s.publish(ride.EventTypeRideCancelled, map[string]interface{}{"Ride": rideID})

	return nil
}

// UpdateRideToken changes where future notifications go. Poller cadence and
// the last notified state are untouched.
func (s *RideScheduler) UpdateRideToken(ctx context.Context, rideID string, token string) error {
	if err := s.Store.UpdateToken(ctx, rideID, token); err != nil {
		log.Error().Err(err).Str("event", "updateRideToken.failed").Str("ride", rideID).Msg("Failed to update ride token")
		return err
	}

	log.Info().Str("event", "updateRideToken.success").Str("ride", rideID).Msg("Updated ride token")

	return nil
}

// ScheduleExisting rehydrates pollers for every persisted ride. It runs as a
// startup barrier before the API serves new registrations. Rides whose
// journey has already elapsed are deleted instead of re-armed.
func (s *RideScheduler) ScheduleExisting(ctx context.Context) error {
	records, err := s.Store.GetAll(ctx)
	if err != nil {
		return err
	}

	log.Info().
		Str("event", "scheduler.scheduleExisting").
		Int("rides", len(records)).
		Msg("Rehydrating ride pollers")

	now := s.now()

	var waitGroup conc.WaitGroup

	for _, record := range records {
		record := record

		waitGroup.Go(func() {
			if record.Expired(now, s.Config.GraceWindow) {
				log.Info().
					Str("event", "scheduler.rideInPast").
					Str("ride", record.PrimaryIdentifier).
					Msg("Stored ride already elapsed, deleting")

				s.Store.Delete(ctx, record.PrimaryIdentifier)
				return
			}

			if record.CheckEligibility(now, s.Config.MaxFutureWindow) == ride.EligibilityInFuture {
				log.Info().
					Str("event", "scheduler.rideInFuture").
					Str("ride", record.PrimaryIdentifier).
					Msg("Stored ride outside scheduling window, deleting")

				s.Store.Delete(ctx, record.PrimaryIdentifier)
				return
			}

			s.armPoller(record.PrimaryIdentifier)
		})
	}

	waitGroup.Wait()

	return nil
}

// StopAll cooperatively stops every poller, for process shutdown.
func (s *RideScheduler) StopAll() {
	for _, rideID := range s.registry.IDs() {
		s.disarmPoller(rideID)
	}
}

func (s *RideScheduler) armPoller(rideID string) {
	poller := newDelayPoller(s, rideID)

	if previous := s.registry.swap(rideID, poller); previous != nil {
		previous.Stop()
	}

	go poller.run()

	log.Info().
		Str("event", "updateDelay.register").
		Str("ride", rideID).
		Dur("refresh", poller.RefreshRate).
		Msg("Armed delay poller")
}

func (s *RideScheduler) disarmPoller(rideID string) {
	if previous := s.registry.swap(rideID, nil); previous != nil {
		previous.Stop()

		log.Info().Str("event", "updateDelay.cancel").Str("ride", rideID).Msg("Stopped delay poller")
	}
}

// handleExpired is called by a poller once the journey has fully elapsed.
func (s *RideScheduler) handleExpired(poller *DelayPoller) {
	s.opMutex.Lock()
	defer s.opMutex.Unlock()

	if !s.registry.removeIf(poller.RideID, poller) {
		// A replacement poller took over while this one wound down - leave
		// the record to its new owner.
		return
	}

	log.Info().Str("event", "updateDelay.cancel").Str("ride", poller.RideID).Msg("Ride expired, stopping delay poller")

	if err := s.Store.Delete(context.Background(), poller.RideID); err != nil {
		log.Error().Err(err).Str("ride", poller.RideID).Msg("Failed to delete expired ride, rehydration will retry")
		return
	}

	s.publish(ride.EventTypeRideExpired, map[string]interface{}{"Ride": poller.RideID})
}

// handleGone is called by a poller whose record vanished from the store.
func (s *RideScheduler) handleGone(poller *DelayPoller) {
	if s.registry.removeIf(poller.RideID, poller) {
		log.Warn().Str("event", "updateDelay.cancel").Str("ride", poller.RideID).Msg("Ride record gone, stopping orphaned poller")
	}
}

func (s *RideScheduler) publish(eventType ride.EventType, body interface{}) {
	if s.Events == nil {
		return
	}

	s.Events.Publish(eventType, body)
}
