package store

import (
	"context"
	"errors"
	"time"

	"github.com/railwatch/railwatch/pkg/database"
	"github.com/railwatch/railwatch/pkg/ride"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned when no ride record exists for the given id.
var ErrNotFound = errors.New("ride not found")

// RideStore is the persistence layer for ride records. Pure CRUD over the
// rides collection, no business validation.
type RideStore struct {
	Collection *mongo.Collection
}

func NewRideStore() *RideStore {
	return &RideStore{
		Collection: database.GetCollection(database.RidesCollectionName),
	}
}

func (s *RideStore) Get(ctx context.Context, rideID string) (*ride.Ride, error) {
	var record *ride.Ride

	err := s.Collection.FindOne(ctx, bson.M{"primaryidentifier": rideID}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}

		log.Error().Err(err).Str("event", "ridestore.get.failed").Str("ride", rideID).Msg("Failed to get ride")
		return nil, err
	}

	log.Debug().Str("event", "ridestore.get.success").Str("ride", rideID).Send()

	return record, nil
}

func (s *RideStore) GetAll(ctx context.Context) ([]*ride.Ride, error) {
	cursor, err := s.Collection.Find(ctx, bson.M{})
	if err != nil {
		log.Error().Err(err).Str("event", "ridestore.getAll.failed").Msg("Failed to list rides")
		return nil, err
	}

	var records []*ride.Ride
	if err := cursor.All(ctx, &records); err != nil {
		log.Error().Err(err).Str("event", "ridestore.getAll.failed").Msg("Failed to decode rides")
		return nil, err
	}

	log.Debug().Str("event", "ridestore.getAll.success").Int("count", len(records)).Send()

	return records, nil
}

func (s *RideStore) Add(ctx context.Context, record *ride.Ride) error {
	now := time.Now()
	record.CreationDateTime = now
	record.ModificationDateTime = now

	filter := bson.M{"primaryidentifier": record.PrimaryIdentifier}
	update := bson.M{"$set": record}
	opts := options.Update().SetUpsert(true)

	_, err := s.Collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		log.Error().Err(err).Str("event", "ridestore.add.failed").Str("ride", record.PrimaryIdentifier).Msg("Failed to add ride")
		return err
	}

	log.Info().Str("event", "ridestore.add.success").Str("ride", record.PrimaryIdentifier).Send()

	return nil
}

func (s *RideStore) Delete(ctx context.Context, rideID string) error {
	_, err := s.Collection.DeleteOne(ctx, bson.M{"primaryidentifier": rideID})
	if err != nil {
		log.Error().Err(err).Str("event", "ridestore.delete.failed").Str("ride", rideID).Msg("Failed to delete ride")
		return err
	}

	log.Info().Str("event", "ridestore.delete.success").Str("ride", rideID).Send()

	return nil
}

func (s *RideStore) UpdateToken(ctx context.Context, rideID string, token string) error {
	return s.updateField(ctx, rideID, "token", token, "ridestore.updateToken")
}

func (s *RideStore) UpdateLastNotificationID(ctx context.Context, rideID string, notificationID string) error {
	return s.updateField(ctx, rideID, "lastnotificationid", notificationID, "ridestore.updateNotificationId")
}

func (s *RideStore) updateField(ctx context.Context, rideID string, field string, value string, event string) error {
	filter := bson.M{"primaryidentifier": rideID}
	update := bson.M{"$set": bson.M{
		field:                  value,
		"modificationdatetime": time.Now(),
	}}

	result, err := s.Collection.UpdateOne(ctx, filter, update)
	if err != nil {
		log.Error().Err(err).Str("event", event+".failed").Str("ride", rideID).Msg("Failed to update ride")
		return err
	}

	if result.MatchedCount == 0 {
		log.Error().Str("event", event+".failed").Str("ride", rideID).Msg("No ride matched update")
		return ErrNotFound
	}

	log.Info().Str("event", event+".success").Str("ride", rideID).Send()

	return nil
}
