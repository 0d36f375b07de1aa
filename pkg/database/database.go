package database

import (
	"context"
	"time"

	"github.com/railwatch/railwatch/pkg/util"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoInstance struct {
	Client   *mongo.Client
	Database *mongo.Database
}

var MongoGlobalInstance *MongoInstance

const defaultMongoConnectionString = "mongodb://localhost:27017/"
const defaultMongoDatabase = "railwatch"

const RidesCollectionName = "rides"

func Connect() error {
	connectionString := defaultMongoConnectionString
	dbName := defaultMongoDatabase

	env := util.GetEnvironmentVariables()

	if env["RAILWATCH_MONGODB_CONNECTION"] != "" {
		connectionString = env["RAILWATCH_MONGODB_CONNECTION"]
	}

	if env["RAILWATCH_MONGODB_DATABASE"] != "" {
		dbName = env["RAILWATCH_MONGODB_DATABASE"]
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(connectionString))
	if err != nil {
		log.Error().Err(err).Str("event", "ridestore.connect.failed").Msg("Failed to connect to MongoDB")
		return err
	}

	database := client.Database(dbName)

	MongoGlobalInstance = &MongoInstance{
		Client:   client,
		Database: database,
	}

	err = client.Ping(context.Background(), nil)
	if err != nil {
		log.Error().Err(err).Str("event", "ridestore.connect.failed").Msg("Failed to ping MongoDB")
		return err
	}

	createIndexes()

	log.Info().Str("event", "ridestore.connect.success").Str("database", dbName).Msg("Connected to MongoDB")

	return nil
}

func GetCollection(collectionName string) *mongo.Collection {
	return MongoGlobalInstance.Database.Collection(collectionName)
}

func createIndexes() {
	ridesCollection := GetCollection(RidesCollectionName)

	_, err := ridesCollection.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{
			Keys:    bson.M{"primaryidentifier": 1},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.M{"route.departuretime": 1},
		},
	})

	if err != nil {
		log.Error().Err(err).Msg("Failed to create rides indexes")
	}
}
