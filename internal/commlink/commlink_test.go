package commlink

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pandora-iot/pot-controller/internal/model"
	"github.com/pandora-iot/pot-controller/internal/protocol"
	"github.com/pandora-iot/pot-controller/internal/pubsub"
)

var t0 = time.Date(2026, 4, 12, 8, 30, 0, 0, time.UTC)

type fakeClient struct {
	connected   bool
	connectErr  error
	publishErr  error
	connects    []string
	subscribes  []string
	published   [][]byte
	publishedTo []string
	handler     func(topic string, payload []byte)
}

func (f *fakeClient) Connect(clientID string) error {
	f.connects = append(f.connects, clientID)
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeClient) Subscribe(topic string, handler func(string, []byte)) error {
	f.subscribes = append(f.subscribes, topic)
	f.handler = handler
	return nil
}

func (f *fakeClient) Publish(topic string, payload []byte, retain bool) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, payload)
	f.publishedTo = append(f.publishedTo, topic)
	return nil
}

func (f *fakeClient) IsConnected() bool { return f.connected }
func (f *fakeClient) Disconnect()       { f.connected = false }

func testState() *model.DeviceState {
	return &model.DeviceState{
		Init: model.InitConfig{
			SSID:        "home",
			Account:     "alice",
			DeviceID:    42,
			DisplayName: "kitchen-basil",
		},
	}
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "pandora/alice/kitchen-basil", Topic(testState().Init))
}

func TestSender_FirstTickPublishes(t *testing.T) {
	st := testState()
	client := &fakeClient{connected: true}

	task := NewSenderTask(st, client)
	task.Run(t0)

	assert.Len(t, client.published, 1)
	assert.Equal(t, "pandora/alice/kitchen-basil", client.publishedTo[0])

	hdr, cmd, err := protocol.Decode(client.published[0])
	assert.NoError(t, err)
	assert.Nil(t, cmd)
	assert.Equal(t, protocol.TagUpdate, hdr.Tag)
	assert.Equal(t, uint32(42), hdr.DeviceID)
}

func TestSender_IntervalGating(t *testing.T) {
	st := testState()
	client := &fakeClient{connected: true}
	task := NewSenderTask(st, client)

	task.Run(t0)
	task.Run(t0.Add(14 * time.Minute))
	assert.Len(t, client.published, 1)

	task.Run(t0.Add(15 * time.Minute))
	assert.Len(t, client.published, 2)
}

func TestSender_ForceUpdateFiresImmediatelyAndIsConsumed(t *testing.T) {
	st := testState()
	client := &fakeClient{connected: true}
	task := NewSenderTask(st, client)

	task.Run(t0)
	st.History.ForceUpdate.On = true

	task.Run(t0.Add(time.Second))
	assert.Len(t, client.published, 2)
	assert.False(t, st.History.ForceUpdate.On)

	// One-shot: the next tick is back on the 15 minute cadence.
	task.Run(t0.Add(2 * time.Second))
	assert.Len(t, client.published, 2)
}

func TestSender_ForceUpdateSurvivesDisconnection(t *testing.T) {
	st := testState()
	client := &fakeClient{connected: false}
	task := NewSenderTask(st, client)

	st.History.ForceUpdate.On = true
	task.Run(t0)

	assert.Empty(t, client.published)
	assert.True(t, st.History.ForceUpdate.On)
}

func TestSender_PublishFailureWaitsForNextInterval(t *testing.T) {
	st := testState()
	client := &fakeClient{connected: true, publishErr: fmt.Errorf("broker gone")}
	task := NewSenderTask(st, client)

	task.Run(t0)
	assert.Empty(t, client.published)

	client.publishErr = nil
	task.Run(t0.Add(time.Second))
	assert.Empty(t, client.published, "failed send must not retry before the next interval")

	task.Run(t0.Add(15 * time.Minute))
	assert.Len(t, client.published, 1)
}

func TestListener_AppliesValidCommand(t *testing.T) {
	st := testState()
	inbox := pubsub.NewInbox(8)
	task := NewListenerTask(st, inbox)

	origin := t0.Add(-time.Minute)
	inbox.Put(protocol.EncodeDrain(42, model.DrainCommand{On: true, Limit: 200, Origin: origin}))

	task.Run(t0)
	assert.True(t, st.History.Drain.On)
	assert.Equal(t, uint32(200), st.History.Drain.Limit)
	assert.True(t, st.History.Drain.Origin.Equal(origin.Truncate(time.Second)))
}

func TestListener_ShortDrainLeavesHistoryUnmodified(t *testing.T) {
	st := testState()
	inbox := pubsub.NewInbox(8)
	task := NewListenerTask(st, inbox)

	buf := protocol.EncodeDrain(42, model.DrainCommand{On: true, Limit: 200, Origin: t0})
	inbox.Put(buf[:len(buf)-1])

	task.Run(t0)
	assert.Equal(t, model.DrainCommand{}, st.History.Drain)
}

func TestListener_IgnoresOwnTelemetryEcho(t *testing.T) {
	st := testState()
	inbox := pubsub.NewInbox(8)
	task := NewListenerTask(st, inbox)

	inbox.Put(protocol.EncodeUpdate(42, model.Telemetry{SoilDryness: 900, SampledAt: t0}))

	task.Run(t0)
	assert.Equal(t, model.CommandHistory{}, st.History)
}

func TestListener_DrainsEverythingBuffered(t *testing.T) {
	st := testState()
	inbox := pubsub.NewInbox(8)
	task := NewListenerTask(st, inbox)

	inbox.Put(protocol.EncodeDrain(42, model.DrainCommand{On: true, Limit: 100, Origin: t0}))
	inbox.Put(protocol.EncodeLight(42, model.LightCommand{RGB: model.RGBAll, Limit: 60, Origin: t0}))

	task.Run(t0)
	assert.True(t, st.History.Drain.On)
	assert.Equal(t, model.RGBAll, st.History.Light.RGB)
}

func TestReconnector_ConnectsWithDeviceIDAndSubscribes(t *testing.T) {
	st := testState()
	client := &fakeClient{}
	inbox := pubsub.NewInbox(8)
	task := NewReconnectorTask(st, client, inbox)

	task.Run(t0)
	assert.Equal(t, []string{"42"}, client.connects)
	assert.Equal(t, []string{"pandora/alice/kitchen-basil"}, client.subscribes)

	// Subscription handler feeds the inbox.
	client.handler("pandora/alice/kitchen-basil", protocol.EncodeForceUpdate(42, model.ForceUpdateCommand{On: true, Origin: t0}))
	applied := 0
	inbox.Drain(func([]byte) { applied++ })
	assert.Equal(t, 1, applied)
}

func TestReconnector_NoopWhenConnected(t *testing.T) {
	st := testState()
	client := &fakeClient{connected: true}
	task := NewReconnectorTask(st, client, pubsub.NewInbox(8))

	task.Run(t0)
	assert.Empty(t, client.connects)
}

func TestReconnector_ConnectFailureAbsorbed(t *testing.T) {
	st := testState()
	client := &fakeClient{connectErr: fmt.Errorf("no route")}
	task := NewReconnectorTask(st, client, pubsub.NewInbox(8))

	task.Run(t0)
	assert.Empty(t, client.subscribes)
	assert.False(t, client.IsConnected())
}
