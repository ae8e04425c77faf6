package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// PubSubFeed realizes the change feed on Google Cloud Pub/Sub. The family id
// is the ordering key, so one family is one partition: events for a family
// arrive in order and the broker hands each partition to exactly one live
// consumer at a time, rebalancing on instance loss.
type PubSubFeed struct {
	client  *pubsub.Client
	topic   *pubsub.Topic
	subName string
	log     *logrus.Entry
}

func NewPubSubFeed(ctx context.Context, projectID, topicName, credentialsFile string, log *logrus.Entry) (*PubSubFeed, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	topic := client.Topic(topicName)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check topic %s: %w", topicName, err)
	}
	if !exists {
		topic, err = client.CreateTopic(ctx, topicName)
		if err != nil {
			return nil, fmt.Errorf("failed to create topic %s: %w", topicName, err)
		}
		log.Infof("created topic %s", topicName)
	}
	topic.EnableMessageOrdering = true

	return &PubSubFeed{
		client:  client,
		topic:   topic,
		subName: topicName + "-sub", // Convention: topic-sub
		log:     log,
	}, nil
}

func (f *PubSubFeed) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}

	res := f.topic.Publish(ctx, &pubsub.Message{
		Data:        data,
		OrderingKey: event.FamilyID,
	})
	if _, err := res.Get(ctx); err != nil {
		// A failed ordered publish pauses the whole ordering key until
		// explicitly resumed.
		f.topic.ResumePublish(event.FamilyID)
		return fmt.Errorf("failed to publish change event for item %s: %w", event.ItemID, err)
	}
	return nil
}

func (f *PubSubFeed) Receive(ctx context.Context, handler Handler) error {
	sub := f.client.Subscription(f.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return fmt.Errorf("failed to check subscription %s: %w", f.subName, err)
	}
	if !exists {
		sub, err = f.client.CreateSubscription(ctx, f.subName, pubsub.SubscriptionConfig{
			Topic:                 f.topic,
			AckDeadline:           60 * time.Second,
			EnableMessageOrdering: true,
		})
		if err != nil {
			return fmt.Errorf("failed to create subscription %s: %w", f.subName, err)
		}
		f.log.Infof("created subscription %s", f.subName)
	}

	f.log.Infof("listening on subscription %s", f.subName)
	return sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			f.log.WithError(err).Warn("dropping undecodable change event")
			msg.Ack()
			return
		}

		if err := handler(ctx, event); err != nil {
			f.log.WithError(err).WithField("item_id", event.ItemID).Warn("event handling failed, requesting redelivery")
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (f *PubSubFeed) Close() error {
	f.topic.Stop()
	return f.client.Close()
}
