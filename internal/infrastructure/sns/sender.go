package sns

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/learnhub-notify/internal/config"
)

// PushSender delivers one push message to one device endpoint.
type PushSender interface {
	SendPush(ctx context.Context, token, platform, title, body string, data map[string]string) error
}

type sender struct {
	client *sns.Client
}

func NewSender(cfg *config.Config) (PushSender, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.SNSRegion),
	)
	if err != nil {
		return nil, err
	}
	return &sender{client: sns.NewFromConfig(awsCfg)}, nil
}

// SendPush publishes to the SNS platform endpoint identified by token.
// The payload carries title/body plus the data map for both GCM and APNS,
// keyed by MessageStructure "json"; SNS picks the block matching the
// endpoint's platform.
func (s *sender) SendPush(ctx context.Context, token, platform, title, body string, data map[string]string) error {
	msg, err := buildPayload(title, body, data)
	if err != nil {
		return err
	}
	_, err = s.client.Publish(ctx, &sns.PublishInput{
		TargetArn:        aws.String(token),
		Message:          aws.String(msg),
		MessageStructure: aws.String("json"),
	})
	return err
}

func buildPayload(title, body string, data map[string]string) (string, error) {
	gcm, err := json.Marshal(map[string]interface{}{
		"notification": map[string]string{"title": title, "body": body},
		"data":         data,
	})
	if err != nil {
		return "", fmt.Errorf("marshal gcm payload: %w", err)
	}
	apns, err := json.Marshal(map[string]interface{}{
		"aps":  map[string]interface{}{"alert": map[string]string{"title": title, "body": body}},
		"data": data,
	})
	if err != nil {
		return "", fmt.Errorf("marshal apns payload: %w", err)
	}
	envelope, err := json.Marshal(map[string]string{
		"default": body,
		"GCM":     string(gcm),
		"APNS":    string(apns),
	})
	if err != nil {
		return "", fmt.Errorf("marshal push envelope: %w", err)
	}
	return string(envelope), nil
}
