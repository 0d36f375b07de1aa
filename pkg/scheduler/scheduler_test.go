package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/railwatch/railwatch/pkg/ride"
	"github.com/railwatch/railwatch/pkg/store"
)

func TestRegisterRide(t *testing.T) {
	rideStore := newMemStore()
	events := &fakeEvents{}
	rideScheduler := newTestScheduler(rideStore, &fakeRoutes{}, &fakeDispatcher{}, events)
	defer rideScheduler.StopAll()

	fresh := testRide("ride-1")
	fresh.LastNotificationID = ""

	err := rideScheduler.RegisterRide(context.Background(), fresh)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	record := rideStore.record("ride-1")
	if record == nil {
		t.Fatal("expected ride to be persisted")
	}
	if record.LastNotificationID != ride.OnTimeNotificationID() {
		t.Errorf("expected on-time initial notification id, got %s", record.LastNotificationID)
	}

	if rideScheduler.Registry().Len() != 1 {
		t.Errorf("expected 1 poller, got %d", rideScheduler.Registry().Len())
	}
	if rideScheduler.Registry().Get("ride-1") == nil {
		t.Error("expected a poller registered for ride-1")
	}

	if !events.published(ride.EventTypeRideRegistered) {
		t.Error("expected a RideRegistered event")
	}
}

func TestRegisterRideInPast(t *testing.T) {
	rideStore := newMemStore()
	rideScheduler := newTestScheduler(rideStore, &fakeRoutes{}, &fakeDispatcher{}, nil)

	record := testRide("ride-1")
	record.Route.DepartureTime = testNow.Add(-time.Hour)
	record.Route.ArrivalTime = testNow.Add(time.Hour)

	err := rideScheduler.RegisterRide(context.Background(), record)
	if !errors.Is(err, ErrRideInPast) {
		t.Fatalf("expected ErrRideInPast, got %v", err)
	}

	if rideStore.count() != 0 {
		t.Error("past ride should never be persisted")
	}
	if rideScheduler.Registry().Len() != 0 {
		t.Error("past ride should never get a poller")
	}
}

func TestRegisterRideInPastDeletesStaleRecord(t *testing.T) {
	rideStore := newMemStore()
	rideScheduler := newTestScheduler(rideStore, &fakeRoutes{}, &fakeDispatcher{}, nil)

	stale := testRide("ride-1")
	rideStore.Add(context.Background(), stale)

	record := testRide("ride-1")
	record.Route.DepartureTime = testNow.Add(-time.Hour)

	rideScheduler.RegisterRide(context.Background(), record)

	if rideStore.count() != 0 {
		t.Error("stale record should be cleaned up when re-registering a past ride")
	}
}

func TestRegisterRideInFuture(t *testing.T) {
	rideStore := newMemStore()
	rideScheduler := newTestScheduler(rideStore, &fakeRoutes{}, &fakeDispatcher{}, nil)

	record := testRide("ride-1")
	record.Route.DepartureTime = testNow.Add(7 * 24 * time.Hour)
	record.Route.ArrivalTime = record.Route.DepartureTime.Add(2 * time.Hour)

	err := rideScheduler.RegisterRide(context.Background(), record)
	if !errors.Is(err, ErrRideInFuture) {
		t.Fatalf("expected ErrRideInFuture, got %v", err)
	}

	if rideStore.count() != 0 || rideScheduler.Registry().Len() != 0 {
		t.Error("far-future ride should neither be persisted nor polled")
	}
}

func TestRegisterRideStoreFailure(t *testing.T) {
	rideStore := newMemStore()
	rideStore.addErr = errors.New("mongo down")
	rideScheduler := newTestScheduler(rideStore, &fakeRoutes{}, &fakeDispatcher{}, nil)

	err := rideScheduler.RegisterRide(context.Background(), testRide("ride-1"))
	if err == nil {
		t.Fatal("expected persistence error to be surfaced")
	}

	if rideScheduler.Registry().Len() != 0 {
		t.Error("a persistence failure must not start a poller")
	}
}

func TestRegisterRideReplacesPoller(t *testing.T) {
	rideStore := newMemStore()
	rideScheduler := newTestScheduler(rideStore, &fakeRoutes{}, &fakeDispatcher{}, nil)
	defer rideScheduler.StopAll()

	rideScheduler.RegisterRide(context.Background(), testRide("ride-1"))
	first := rideScheduler.Registry().Get("ride-1")

	rideScheduler.RegisterRide(context.Background(), testRide("ride-1"))
	second := rideScheduler.Registry().Get("ride-1")

	if rideScheduler.Registry().Len() != 1 {
		t.Errorf("expected exactly 1 poller, got %d", rideScheduler.Registry().Len())
	}
	if first == second {
		t.Error("re-registration should install a fresh poller")
	}
	if !first.stopped() {
		t.Error("replaced poller should be stopped")
	}
}

func TestCancelRide(t *testing.T) {
	rideStore := newMemStore()
	events := &fakeEvents{}
	rideScheduler := newTestScheduler(rideStore, &fakeRoutes{}, &fakeDispatcher{}, events)

	rideScheduler.RegisterRide(context.Background(), testRide("ride-1"))
	poller := rideScheduler.Registry().Get("ride-1")

	err := rideScheduler.CancelRide(context.Background(), "ride-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rideStore.count() != 0 {
		t.Error("cancelled ride should be deleted from the store")
	}
	if rideScheduler.Registry().Len() != 0 {
		t.Error("cancelled ride should have no poller")
	}
	if !poller.stopped() {
		t.Error("cancelled ride's poller should be stopped")
	}
	if !events.published(ride.EventTypeRideCancelled) {
		t.Error("expected a RideCancelled event")
	}
}

func TestCancelRideIdempotent(t *testing.T) {
	rideStore := newMemStore()
	rideScheduler := newTestScheduler(rideStore, &fakeRoutes{}, &fakeDispatcher{}, nil)

	if err := rideScheduler.CancelRide(context.Background(), "never-registered"); err != nil {
		t.Fatalf("cancelling an unknown ride should succeed, got %v", err)
	}

	rideScheduler.RegisterRide(context.Background(), testRide("ride-1"))
	rideScheduler.CancelRide(context.Background(), "ride-1")

	if err := rideScheduler.CancelRide(context.Background(), "ride-1"); err != nil {
		t.Fatalf("second cancel should succeed, got %v", err)
	}
}

func TestCancelRideDeleteFailure(t *testing.T) {
	rideStore := newMemStore()
	rideScheduler := newTestScheduler(rideStore, &fakeRoutes{}, &fakeDispatcher{}, nil)

	rideScheduler.RegisterRide(context.Background(), testRide("ride-1"))
	rideStore.deleteErr = errors.New("mongo down")

	err := rideScheduler.CancelRide(context.Background(), "ride-1")
	if err == nil {
		t.Fatal("expected deletion failure to be surfaced")
	}

	// The poller is already gone, rehydration re-deletes the orphan record.
	if rideScheduler.Registry().Len() != 0 {
		t.Error("poller should be removed even when record deletion fails")
	}
}

func TestUpdateRideToken(t *testing.T) {
	rideStore := newMemStore()
	rideScheduler := newTestScheduler(rideStore, &fakeRoutes{}, &fakeDispatcher{}, nil)
	defer rideScheduler.StopAll()

	record := testRide("ride-1")
	record.LastNotificationID = "DELAY:5:PLATFORM:"
	rideStore.Add(context.Background(), record)

	if err := rideScheduler.UpdateRideToken(context.Background(), "ride-1", "token-2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated := rideStore.record("ride-1")
	if updated.Token != "token-2" {
		t.Errorf("expected token-2, got %s", updated.Token)
	}
	if updated.LastNotificationID != "DELAY:5:PLATFORM:" {
		t.Error("token update must not touch the last notified state")
	}
}

func TestUpdateRideTokenUnknownRide(t *testing.T) {
	rideScheduler := newTestScheduler(newMemStore(), &fakeRoutes{}, &fakeDispatcher{}, nil)

	err := rideScheduler.UpdateRideToken(context.Background(), "nope", "token-2")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestScheduleExisting(t *testing.T) {
	rideStore := newMemStore()
	rideScheduler := newTestScheduler(rideStore, &fakeRoutes{}, &fakeDispatcher{}, nil)
	defer rideScheduler.StopAll()

	valid := testRide("ride-valid")

	elapsed := testRide("ride-elapsed")
	elapsed.Route.DepartureTime = testNow.Add(-4 * time.Hour)
	elapsed.Route.ArrivalTime = testNow.Add(-2 * time.Hour)

	future := testRide("ride-future")
	future.Route.DepartureTime = testNow.Add(7 * 24 * time.Hour)
	future.Route.ArrivalTime = future.Route.DepartureTime.Add(2 * time.Hour)

	rideStore.Add(context.Background(), valid)
	rideStore.Add(context.Background(), elapsed)
	rideStore.Add(context.Background(), future)

	if err := rideScheduler.ScheduleExisting(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rideScheduler.Registry().Len() != 1 {
		t.Errorf("expected 1 rehydrated poller, got %d", rideScheduler.Registry().Len())
	}
	if rideScheduler.Registry().Get("ride-valid") == nil {
		t.Error("expected the still-running ride to be re-armed")
	}

	if rideStore.record("ride-elapsed") != nil {
		t.Error("elapsed ride should be deleted during rehydration")
	}
	if rideStore.record("ride-future") != nil {
		t.Error("out-of-window ride should be deleted during rehydration")
	}
	if rideStore.record("ride-valid") == nil {
		t.Error("valid ride should remain persisted")
	}
}

func TestScheduleExistingStoreFailure(t *testing.T) {
	rideStore := newMemStore()
	rideStore.getAllErr = errors.New("mongo down")
	rideScheduler := newTestScheduler(rideStore, &fakeRoutes{}, &fakeDispatcher{}, nil)

	if err := rideScheduler.ScheduleExisting(context.Background()); err == nil {
		t.Fatal("rehydration must fail fast when the store is unavailable")
	}
}

func TestStopAll(t *testing.T) {
	rideStore := newMemStore()
	rideScheduler := newTestScheduler(rideStore, &fakeRoutes{}, &fakeDispatcher{}, nil)

	rideScheduler.RegisterRide(context.Background(), testRide("ride-1"))
	rideScheduler.RegisterRide(context.Background(), testRide("ride-2"))

	pollerOne := rideScheduler.Registry().Get("ride-1")
	pollerTwo := rideScheduler.Registry().Get("ride-2")

	rideScheduler.StopAll()

	if rideScheduler.Registry().Len() != 0 {
		t.Errorf("expected empty registry, got %d", rideScheduler.Registry().Len())
	}
	if !pollerOne.stopped() || !pollerTwo.stopped() {
		t.Error("all pollers should be stopped")
	}

	select {
	case <-pollerOne.Done():
	case <-time.After(time.Second):
		t.Error("stopped poller did not wind down")
	}
}

func TestHandleExpired(t *testing.T) {
	rideStore := newMemStore()
	events := &fakeEvents{}
	rideScheduler := newTestScheduler(rideStore, &fakeRoutes{}, &fakeDispatcher{}, events)

	rideStore.Add(context.Background(), testRide("ride-1"))

	poller := newDelayPoller(rideScheduler, "ride-1")
	rideScheduler.registry.swap("ride-1", poller)

	rideScheduler.handleExpired(poller)

	if rideScheduler.Registry().Len() != 0 {
		t.Error("expired poller should be removed from the registry")
	}
	if rideStore.count() != 0 {
		t.Error("expired ride should be deleted")
	}
	if !events.published(ride.EventTypeRideExpired) {
		t.Error("expected a RideExpired event")
	}
}

func TestHandleExpiredLeavesReplacement(t *testing.T) {
	rideStore := newMemStore()
	rideScheduler := newTestScheduler(rideStore, &fakeRoutes{}, &fakeDispatcher{}, nil)

	rideStore.Add(context.Background(), testRide("ride-1"))

	old := newDelayPoller(rideScheduler, "ride-1")
	replacement := newDelayPoller(rideScheduler, "ride-1")
	rideScheduler.registry.swap("ride-1", replacement)

	rideScheduler.handleExpired(old)

	if rideScheduler.Registry().Get("ride-1") != replacement {
		t.Error("a winding-down poller must not evict its replacement")
	}
	if rideStore.record("ride-1") == nil {
		t.Error("the replacement poller's record must not be deleted")
	}
}
