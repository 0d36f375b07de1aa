package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/railwatch/railwatch/pkg/ride"
	"github.com/railwatch/railwatch/pkg/store"
	"github.com/rs/zerolog/log"
)

type tickOutcome int

const (
	tickContinue tickOutcome = iota
	tickExpired
	tickGone
)

// DelayPoller is the repeating per-ride task that checks live route status
// against the last notified state. It runs until the journey elapses or it is
// cooperatively stopped; no in-flight tick is aborted, but no new tick starts
// after a stop.
type DelayPoller struct {
	RideID      string
	RefreshRate time.Duration

	scheduler *RideScheduler

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func newDelayPoller(scheduler *RideScheduler, rideID string) *DelayPoller {
	return &DelayPoller{
		RideID:      rideID,
		RefreshRate: scheduler.Config.PollInterval,

		scheduler: scheduler,

		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Stop requests cooperative shutdown. It never blocks; the current tick (if
// any) finishes on its own and its results are discarded.
func (p *DelayPoller) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
	})
}

func (p *DelayPoller) stopped() bool {
	select {
	case <-p.stop:
		return true
	default:
		return false
	}
}

func (p *DelayPoller) Done() <-chan struct{} {
	return p.done
}

func (p *DelayPoller) run() {
	defer close(p.done)

	for {
		if p.stopped() {
			return
		}

		startTime := p.scheduler.now()

		switch p.tick(context.Background()) {
		case tickExpired:
			p.scheduler.handleExpired(p)
			return
		case tickGone:
			// Record disappeared underneath us - favour the store and shut
			// this poller down.
			p.scheduler.handleGone(p)
			return
		}

		executionDuration := p.scheduler.now().Sub(startTime)
		waitTime := p.RefreshRate - executionDuration

		if waitTime > 0 {
			select {
			case <-p.stop:
				return
			case <-time.After(waitTime):
			}
		}
	}
}

func (p *DelayPoller) tick(ctx context.Context) tickOutcome {
	now := p.scheduler.now()

	record, err := p.scheduler.Store.Get(ctx, p.RideID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return tickGone
		}

		// Store hiccup - leave the ride alone and try again next tick.
		return tickContinue
	}

	if record.Expired(now, p.scheduler.Config.GraceWindow) {
		return tickExpired
	}

	status, err := p.scheduler.Routes.LookupStatus(ctx, record.Route)
	if err != nil {
		// Fetch failures never cancel the poller, the next tick retries.
		return tickContinue
	}

	notificationID := status.NotificationID()
	if notificationID == record.LastNotificationID {
		return tickContinue
	}

	if p.stopped() {
		return tickContinue
	}

	err = p.scheduler.Dispatcher.Send(ctx, record.PrimaryIdentifier, record.Token, record.Platform, status.BuildNotification(record.Route))
	if err != nil {
		// The notification id stays put so the next tick retries the send.
		// Duplicates are tolerated, lost notifications are not.
		return tickContinue
	}

	if p.stopped() {
		return tickContinue
	}

	if err := p.scheduler.Store.UpdateLastNotificationID(ctx, record.PrimaryIdentifier, notificationID); err != nil {
		return tickContinue
	}

	log.Info().
		Str("event", "updateDelay.updated").
		Str("ride", record.PrimaryIdentifier).
		Str("notificationid", notificationID).
		Msg("Delay state change notified")

	p.scheduler.publish(ride.EventTypeDelayNotified, map[string]interface{}{
		"Ride":           record.PrimaryIdentifier,
		"NotificationID": notificationID,
	})

	return tickContinue
}
