package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/railwatch/railwatch/pkg/config"
	"github.com/railwatch/railwatch/pkg/ride"
	"github.com/railwatch/railwatch/pkg/store"
)

type memStore struct {
	mutex sync.Mutex
	rides map[string]*ride.Ride

	addErr    error
	deleteErr error
	getAllErr error
}

func newMemStore() *memStore {
	return &memStore{rides: map[string]*ride.Ride{}}
}

func (m *memStore) Get(ctx context.Context, rideID string) (*ride.Ride, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	record, ok := m.rides[rideID]
	if !ok {
		return nil, store.ErrNotFound
	}

	copied := *record
	return &copied, nil
}

func (m *memStore) GetAll(ctx context.Context) ([]*ride.Ride, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.getAllErr != nil {
		return nil, m.getAllErr
	}

	var records []*ride.Ride
	for _, record := range m.rides {
		copied := *record
		records = append(records, &copied)
	}

	return records, nil
}

func (m *memStore) Add(ctx context.Context, record *ride.Ride) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.addErr != nil {
		return m.addErr
	}

	copied := *record
	m.rides[record.PrimaryIdentifier] = &copied

	return nil
}

func (m *memStore) Delete(ctx context.Context, rideID string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.deleteErr != nil {
		return m.deleteErr
	}

	delete(m.rides, rideID)

	return nil
}

func (m *memStore) UpdateToken(ctx context.Context, rideID string, token string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	record, ok := m.rides[rideID]
	if !ok {
		return store.ErrNotFound
	}

	record.Token = token

	return nil
}

func (m *memStore) UpdateLastNotificationID(ctx context.Context, rideID string, notificationID string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	record, ok := m.rides[rideID]
	if !ok {
		return store.ErrNotFound
	}

	record.LastNotificationID = notificationID

	return nil
}

func (m *memStore) record(rideID string) *ride.Ride {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	record, ok := m.rides[rideID]
	if !ok {
		return nil
	}

	copied := *record
	return &copied
}

func (m *memStore) count() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return len(m.rides)
}

type fakeRoutes struct {
	mutex  sync.Mutex
	status ride.RouteStatus
	err    error
	calls  int
}

func (f *fakeRoutes) LookupStatus(ctx context.Context, route ride.Route) (*ride.RouteStatus, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.calls++

	if f.err != nil {
		return nil, f.err
	}

	status := f.status
	return &status, nil
}

func (f *fakeRoutes) set(status ride.RouteStatus, err error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.status = status
	f.err = err
}

func (f *fakeRoutes) callCount() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return f.calls
}

type sentNotification struct {
	RideID   string
	Token    string
	Platform ride.Platform
	Data     ride.NotificationData
}

type fakeDispatcher struct {
	mutex    sync.Mutex
	sent     []sentNotification
	attempts int
	err      error
}

func (f *fakeDispatcher) Send(ctx context.Context, rideID string, token string, platform ride.Platform, data ride.NotificationData) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.attempts++

	if f.err != nil {
		return f.err
	}

	f.sent = append(f.sent, sentNotification{
		RideID:   rideID,
		Token:    token,
		Platform: platform,
		Data:     data,
	})

	return nil
}

func (f *fakeDispatcher) sentCount() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return len(f.sent)
}

func (f *fakeDispatcher) lastSent() sentNotification {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return f.sent[len(f.sent)-1]
}

type fakeEvents struct {
	mutex sync.Mutex
	types []ride.EventType
}

func (f *fakeEvents) Publish(eventType ride.EventType, body interface{}) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.types = append(f.types, eventType)
}

func (f *fakeEvents) published(eventType ride.EventType) bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	for _, published := range f.types {
		if published == eventType {
			return true
		}
	}

	return false
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestScheduler(rideStore *memStore, routes *fakeRoutes, dispatcher *fakeDispatcher, events *fakeEvents) *RideScheduler {
	var publisher EventPublisher
	if events != nil {
		publisher = events
	}

	rideScheduler := NewRideScheduler(rideStore, routes, dispatcher, publisher, config.Defaults())
	rideScheduler.now = func() time.Time { return testNow }

	return rideScheduler
}

func testRide(rideID string) *ride.Ride {
	return &ride.Ride{
		PrimaryIdentifier: rideID,
		Token:             "token-1",
		Platform:          ride.PlatformApple,

		// Registration seeds this; fixtures added straight to the store need
		// the same baseline or the first on-time poll reads as a change.
		LastNotificationID: ride.OnTimeNotificationID(),
		Route: ride.Route{
			ServiceRef: "GW123400",

			OriginStopRef:   "PAD",
			OriginName:      "London Paddington",
			DestinationRef:  "BRI",
			DestinationName: "Bristol Temple Meads",

			DepartureTime: testNow.Add(time.Hour),
			ArrivalTime:   testNow.Add(3 * time.Hour),
		},
	}
}
