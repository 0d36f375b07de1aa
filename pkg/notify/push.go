package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/railwatch/railwatch/pkg/elastic_client"
	"github.com/railwatch/railwatch/pkg/ride"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

// PushManager delivers delay notifications over FCM, which carries both the
// Android and the APNs delivery paths.
type PushManager struct {
	FirebaseApp *firebase.App
}

type dispatchElasticEvent struct {
	Timestamp time.Time

	Success    bool
	FailReason string

	Ride     string
	Platform ride.Platform
}

// Setup initialises the Firebase app from RAILWATCH_FIREBASE_SERVICE_ACCOUNT
// (base64 encoded service account JSON). Without credentials the manager is
// left disabled and sends become no-ops.
func (m *PushManager) Setup() error {
	fireBaseAuthKey := os.Getenv("RAILWATCH_FIREBASE_SERVICE_ACCOUNT")

	if fireBaseAuthKey == "" {
		log.Warn().Msg("Firebase credentials not provided, push notifications disabled")
		return nil
	}

	decodedKey, err := base64.StdEncoding.DecodeString(fireBaseAuthKey)
	if err != nil {
		return err
	}

	opts := []option.ClientOption{option.WithCredentialsJSON(decodedKey)}

	app, err := firebase.NewApp(context.Background(), nil, opts...)
	if err != nil {
		return err
	}

	m.FirebaseApp = app

	return nil
}

func (m *PushManager) Send(ctx context.Context, rideID string, token string, platform ride.Platform, data ride.NotificationData) error {
	log.Info().
		Str("event", "notification.received").
		Str("ride", rideID).
		Str("platform", string(platform)).
		Str("title", data.Title).
		Msg("Dispatching push notification")

	if m.FirebaseApp == nil {
		log.Warn().Str("ride", rideID).Msg("Push notifications disabled, skipping send")
		return nil
	}

	fcmClient, err := m.FirebaseApp.Messaging(ctx)
	if err != nil {
		m.recordOutcome(rideID, platform, err)
		return err
	}

	message := &messaging.Message{
		Notification: &messaging.Notification{
			Title: data.Title,
			Body:  data.Message,
		},
		Token: token,
	}

	switch platform {
	case ride.PlatformApple:
		message.APNS = &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: "default",
				},
			},
		}
	case ride.PlatformAndroid:
		message.Android = &messaging.AndroidConfig{
			Priority: "high",
		}
	default:
		err := fmt.Errorf("unknown notification platform %q", platform)
		m.recordOutcome(rideID, platform, err)
		return err
	}

	_, err = fcmClient.Send(ctx, message)
	m.recordOutcome(rideID, platform, err)

	return err
}

func (m *PushManager) recordOutcome(rideID string, platform ride.Platform, sendErr error) {
	event := fmt.Sprintf("notification.%s.success", platform)
	if sendErr != nil {
		event = fmt.Sprintf("notification.%s.failed", platform)

		log.Error().Err(sendErr).Str("event", event).Str("ride", rideID).Msg("Failed to send push notification")
	} else {
		log.Info().Str("event", event).Str("ride", rideID).Msg("Sent push notification")
	}

	elasticEvent := dispatchElasticEvent{
		Timestamp: time.Now(),
		Success:   sendErr == nil,
		Ride:      rideID,
		Platform:  platform,
	}
	if sendErr != nil {
		elasticEvent.FailReason = sendErr.Error()
	}

	elasticEventJSON, _ := json.Marshal(elasticEvent)

	elastic_client.IndexRequest(esapi.IndexRequest{
		Index: "railwatch-notifications",
		Body:  bytes.NewReader(elasticEventJSON),
	})
}
