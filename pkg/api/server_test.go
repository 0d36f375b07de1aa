package api

import (
	"net/http"
	"testing"

	"github.com/railwatch/railwatch/pkg/config"
	"github.com/railwatch/railwatch/pkg/scheduler"
)

func TestSetupServer(t *testing.T) {
	rideScheduler := scheduler.NewRideScheduler(nil, nil, nil, nil, config.Defaults())

	webApp := SetupServer(rideScheduler)

	request, _ := http.NewRequest("GET", "/core/version", nil)
	response, err := webApp.Test(request)
	if err != nil {
		t.Fatal(err)
	}
	if response.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", response.StatusCode)
	}

	// The run command stops pollers and shuts the app down on SIGINT; both
	// must be callable on an app that is no longer (or never was) listening.
	rideScheduler.StopAll()
	if err := webApp.Shutdown(); err != nil {
		t.Errorf("unexpected shutdown error: %v", err)
	}
}
