//go:build integration

package notify_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"gatepass/internal/notify"
	"gatepass/internal/notify/models"
	"gatepass/internal/platform/config"
	"gatepass/internal/platform/kafka"
	"gatepass/pkg/testutil/containers"
)

func TestLifecycleEventsReachKafka(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	broker := containers.GetManager().GetRedpanda(t)
	cfg := config.KafkaConfig{Brokers: []string{broker.Broker}, Topic: "gatepass.test.lifecycle"}

	producer, err := kafka.NewProducer(ctx, cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	defer producer.Close(ctx)
	require.NoError(t, producer.EnsureTopic(ctx, 1, 1))
	require.NoError(t, producer.EnsureTopic(ctx, 1, 1), "existing topic is not an error")

	d := notify.NewDispatcher(notify.NewMemorySender(), securityChat, notify.WithPublisher(producer))
	req, msgs, err := d.Finalize(ctx, completeVehicle(5), 1)
	require.NoError(t, err)
	d.Deliver(ctx, msgs)
	d.Announce(ctx, req)
	require.Equal(t, notify.OutcomeAccepted, d.Acknowledge(ctx, msgs[1].Actions[0].Key, 77, models.MessageRef{Chat: securityChat}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker.Broker),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	var got []notify.LifecycleEvent
	for len(got) < 2 {
		fetches := consumer.PollFetches(ctx)
		require.NoError(t, ctx.Err())
		fetches.EachRecord(func(r *kgo.Record) {
			var evt notify.LifecycleEvent
			require.NoError(t, json.Unmarshal(r.Value, &evt))
			require.Equal(t, "1", string(r.Key))
			got = append(got, evt)
		})
	}
	require.Equal(t, notify.EventRequestCreated, got[0].Type)
	require.Equal(t, notify.EventRequestAccepted, got[1].Type)
}
