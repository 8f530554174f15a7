package commlink

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pandora-iot/pot-controller/internal/datadog"
	"github.com/pandora-iot/pot-controller/internal/model"
	"github.com/pandora-iot/pot-controller/internal/protocol"
	"github.com/pandora-iot/pot-controller/internal/pubsub"
	"github.com/pandora-iot/pot-controller/internal/scheduler"
)

const (
	SendInterval      = 15 * time.Minute
	ListenInterval    = 500 * time.Millisecond
	ReconnectInterval = 60 * time.Second
)

// Topic is the single per-device topic, used in both directions. The
// device hears its own telemetry back; the protocol layer ignores it.
func Topic(init model.InitConfig) string {
	return fmt.Sprintf("pandora/%s/%s", init.Account, init.DisplayName)
}

// NewGroup assembles the connected-mode task group. It is activated and
// deactivated whole by the connectivity manager.
func NewGroup(st *model.DeviceState, client pubsub.Client, inbox *pubsub.Inbox) *scheduler.Group {
	return scheduler.NewGroup("commlink",
		NewSenderTask(st, client),
		NewListenerTask(st, inbox),
		NewReconnectorTask(st, client, inbox),
	)
}

// NewSenderTask publishes telemetry every SendInterval, or immediately
// when the force-update flag is set. The flag is a one-shot override,
// consumed when the send fires. A failed publish is logged and waits for
// the next scheduled attempt; there is no retry loop.
func NewSenderTask(st *model.DeviceState, client pubsub.Client) *scheduler.Task {
	var lastSent time.Time

	return scheduler.NewTask("telemetry-sender", ListenInterval, func(now time.Time) {
		forced := st.History.ForceUpdate.On
		if !forced && !lastSent.IsZero() && now.Sub(lastSent) < SendInterval {
			return
		}
		if !client.IsConnected() {
			log.Debug().Msg("Skipping telemetry send, transport not connected")
			return
		}
		if forced {
			st.History.ForceUpdate.On = false
		}

		lastSent = now
		payload := protocol.EncodeUpdate(st.Init.DeviceID, st.Telemetry)
		if err := client.Publish(Topic(st.Init), payload, false); err != nil {
			log.Error().Err(err).Str("topic", Topic(st.Init)).Msg("Failed to publish telemetry update")
			datadog.Incr("commlink.publish_failure")
			return
		}

		log.Debug().
			Bool("forced", forced).
			Uint16("soil", st.Telemetry.SoilDryness).
			Uint16("brightness", st.Telemetry.Brightness).
			Msg("Published telemetry update")
		datadog.Incr("commlink.update_sent")
	})
}

// NewListenerTask drains whatever the transport has already buffered and
// applies each valid command to the history. It never waits for data.
func NewListenerTask(st *model.DeviceState, inbox *pubsub.Inbox) *scheduler.Task {
	return scheduler.NewTask("command-listener", ListenInterval, func(now time.Time) {
		inbox.Drain(func(payload []byte) {
			hdr, cmd, err := protocol.Decode(payload)
			if err != nil {
				log.Error().Err(err).Int("len", len(payload)).Msg("Discarding invalid inbound message")
				datadog.Incr("commlink.decode_error")
				return
			}
			if cmd == nil {
				// Our own telemetry update echoed back.
				return
			}

			cmd.Apply(&st.History)
			log.Info().
				Str("kind", hdr.Tag.String()).
				Uint32("device_id", hdr.DeviceID).
				Msg("Applied inbound command")
			datadog.Incr("commlink.command_applied", "kind:"+hdr.Tag.String())
		})
	})
}

// NewReconnectorTask reconnects the transport with the device id as
// client id and resubscribes to the device topic. Failures are logged and
// absorbed until the next interval.
func NewReconnectorTask(st *model.DeviceState, client pubsub.Client, inbox *pubsub.Inbox) *scheduler.Task {
	return scheduler.NewTask("reconnector", ReconnectInterval, func(now time.Time) {
		if client.IsConnected() {
			return
		}

		clientID := fmt.Sprintf("%d", st.Init.DeviceID)
		if err := client.Connect(clientID); err != nil {
			log.Error().Err(err).Str("client_id", clientID).Msg("Failed to connect to broker")
			datadog.Incr("commlink.connect_failure")
			return
		}

		topic := Topic(st.Init)
		if err := client.Subscribe(topic, func(_ string, payload []byte) { inbox.Put(payload) }); err != nil {
			log.Error().Err(err).Str("topic", topic).Msg("Failed to subscribe to device topic")
			datadog.Incr("commlink.subscribe_failure")
			return
		}

		log.Info().Str("topic", topic).Str("client_id", clientID).Msg("Broker connection established")
	})
}
