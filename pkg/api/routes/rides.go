package routes

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/jinzhu/copier"
	"github.com/liip/sheriff"
	"github.com/railwatch/railwatch/pkg/ride"
	"github.com/railwatch/railwatch/pkg/scheduler"
	"github.com/railwatch/railwatch/pkg/store"
)

const schemaMismatchMessage = "Body doesn't match schema"

var validate = validator.New()

type registerRideRequest struct {
	RideID   string       `json:"rideId" validate:"required"`
	Token    string       `json:"token" validate:"required"`
	Platform string       `json:"platform" validate:"required,oneof=apple android"`
	Route    routePayload `json:"route" validate:"required"`
}

type routePayload struct {
	ServiceRef string `json:"serviceRef" validate:"required"`

	OriginStopRef   string `json:"originStopRef" validate:"required"`
	OriginName      string `json:"originName"`
	DestinationRef  string `json:"destinationRef" validate:"required"`
	DestinationName string `json:"destinationName"`

	DepartureTime time.Time `json:"departureTime" validate:"required"`
	ArrivalTime   time.Time `json:"arrivalTime" validate:"required"`

	Legs []legPayload `json:"legs"`
}

type legPayload struct {
	TrainRef string `json:"trainRef"`

	OriginStopRef  string `json:"originStopRef"`
	DestinationRef string `json:"destinationRef"`

	DepartureTime time.Time `json:"departureTime"`
	ArrivalTime   time.Time `json:"arrivalTime"`
}

type updateTokenRequest struct {
	RideID string `json:"rideId" validate:"required"`
	Token  string `json:"token" validate:"required"`
}

type cancelRideRequest struct {
	RideID string `json:"rideId" validate:"required"`
}

type ridesRouter struct {
	scheduler *scheduler.RideScheduler
}

func RidesRouter(router fiber.Router, rideScheduler *scheduler.RideScheduler) {
	r := &ridesRouter{scheduler: rideScheduler}

	router.Get("/", r.listRides)
	router.Post("/", r.registerRide)
	router.Post("/token", r.updateRideToken)
	router.Delete("/", r.cancelRide)
}

func (r *ridesRouter) registerRide(c *fiber.Ctx) error {
	var requestBody registerRideRequest

	if err := c.BodyParser(&requestBody); err != nil {
		c.SendStatus(fiber.StatusBadRequest)
		return c.SendString(schemaMismatchMessage)
	}
	if err := validate.Struct(requestBody); err != nil {
		c.SendStatus(fiber.StatusBadRequest)
		return c.SendString(schemaMismatchMessage)
	}

	record := &ride.Ride{
		PrimaryIdentifier: requestBody.RideID,
		Token:             requestBody.Token,
		Platform:          ride.Platform(requestBody.Platform),
	}

	if err := copier.Copy(&record.Route, &requestBody.Route); err != nil {
		c.SendStatus(fiber.StatusInternalServerError)
		return c.JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	err := r.scheduler.RegisterRide(c.Context(), record)

	switch {
	case errors.Is(err, scheduler.ErrRideInPast):
		return c.JSON(fiber.Map{
			"success": false,
			"skipped": "rideInPast",
		})
	case errors.Is(err, scheduler.ErrRideInFuture):
		return c.JSON(fiber.Map{
			"success": false,
			"skipped": "rideInFuture",
		})
	case err != nil:
		c.SendStatus(fiber.StatusInternalServerError)
		return c.JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"rideId":  record.PrimaryIdentifier,
	})
}

func (r *ridesRouter) updateRideToken(c *fiber.Ctx) error {
	var requestBody updateTokenRequest

	if err := c.BodyParser(&requestBody); err != nil {
		c.SendStatus(fiber.StatusBadRequest)
		return c.SendString(schemaMismatchMessage)
	}
	if err := validate.Struct(requestBody); err != nil {
		c.SendStatus(fiber.StatusBadRequest)
		return c.SendString(schemaMismatchMessage)
	}

	err := r.scheduler.UpdateRideToken(c.Context(), requestBody.RideID, requestBody.Token)

	switch {
	case errors.Is(err, store.ErrNotFound):
		c.SendStatus(fiber.StatusNotFound)
		return c.JSON(fiber.Map{
			"error": "Could not find Ride matching Ride Identifier",
		})
	case err != nil:
		c.SendStatus(fiber.StatusInternalServerError)
		return c.JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
	})
}

func (r *ridesRouter) cancelRide(c *fiber.Ctx) error {
	var requestBody cancelRideRequest

	if err := c.BodyParser(&requestBody); err != nil {
		c.SendStatus(fiber.StatusBadRequest)
		return c.SendString(schemaMismatchMessage)
	}
	if err := validate.Struct(requestBody); err != nil {
		c.SendStatus(fiber.StatusBadRequest)
		return c.SendString(schemaMismatchMessage)
	}

	if err := r.scheduler.CancelRide(c.Context(), requestBody.RideID); err != nil {
		c.SendStatus(fiber.StatusInternalServerError)
		return c.JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
	})
}

func (r *ridesRouter) listRides(c *fiber.Ctx) error {
	records, err := r.scheduler.Store.GetAll(c.Context())
	if err != nil {
		c.SendStatus(fiber.StatusInternalServerError)
		return c.JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	// Device tokens are tagged internal so they never leave the process.
	ridesReduced, err := sheriff.Marshal(&sheriff.Options{
		Groups: []string{"basic", "detailed"},
	}, records)
	if err != nil {
		c.SendStatus(fiber.StatusInternalServerError)
		return c.JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"rides":   ridesReduced,
		"pollers": r.scheduler.Registry().Len(),
	})
}
