package connectivity

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pandora-iot/pot-controller/internal/model"
	"github.com/pandora-iot/pot-controller/internal/scheduler"
)

type fakeRadio struct {
	joins   []string
	apUp    bool
	joinErr error
}

func (r *fakeRadio) Join(ssid, psk string) error {
	if r.joinErr != nil {
		return r.joinErr
	}
	r.joins = append(r.joins, ssid)
	return nil
}

func (r *fakeRadio) StartFallbackAP() error { r.apUp = true; return nil }
func (r *fakeRadio) StopFallbackAP() error  { r.apUp = false; return nil }

type harness struct {
	m          *Manager
	radio      *fakeRadio
	commlink   *scheduler.Group
	prov       *scheduler.Group
	drops      int
	outputsOff int
}

func newHarness(provisioned bool) *harness {
	h := &harness{
		radio:    &fakeRadio{},
		commlink: scheduler.NewGroup("commlink"),
		prov:     scheduler.NewGroup("provisioning"),
	}
	st := &model.DeviceState{}
	if provisioned {
		st.Init.SSID = "greenhouse"
		st.Init.Passphrase = "chlorophyll"
	}
	h.m = NewManager(st, h.commlink, h.prov, h.radio,
		func() { h.drops++ },
		func() { h.outputsOff++ })
	return h
}

func TestJoinActivatesCommlink(t *testing.T) {
	h := newHarness(true)

	h.m.Handle(EventJoined)
	assert.Equal(t, StateConnected, h.m.State())
	assert.Same(t, h.commlink, h.m.Active())
}

func TestNetworkLossDeactivatesCommlinkAndFailsSafe(t *testing.T) {
	h := newHarness(true)
	h.m.Handle(EventJoined)

	h.m.Handle(EventLeft)
	assert.Equal(t, StateDisconnected, h.m.State())
	assert.NotSame(t, h.commlink, h.m.Active())
	assert.Equal(t, 1, h.outputsOff)
	assert.True(t, h.radio.apUp)
	assert.Equal(t, []string{"greenhouse"}, h.radio.joins)
}

func TestPeerAttachActivatesProvisioningOnly(t *testing.T) {
	h := newHarness(true)

	h.m.Handle(EventPeerAttached)
	assert.Equal(t, StateProvisioningOpen, h.m.State())
	assert.Same(t, h.prov, h.m.Active())
	assert.NotSame(t, h.commlink, h.m.Active())
}

func TestConfigReceivedDropsClientAndRejoins(t *testing.T) {
	h := newHarness(false)
	h.m.Handle(EventPeerAttached)
	h.m.Handle(EventClientAccepted)
	assert.Equal(t, StateProvisioningClient, h.m.State())

	// The provisioning handler stored the record before reporting it.
	h.m.st.Init.SSID = "greenhouse"
	h.m.st.Init.Passphrase = "chlorophyll"

	h.m.Handle(EventConfigReceived)
	assert.Equal(t, StateDisconnected, h.m.State())
	assert.Equal(t, 1, h.drops)
	assert.NotSame(t, h.prov, h.m.Active())
	assert.Equal(t, []string{"greenhouse"}, h.radio.joins)
}

func TestPeerDetachEndsProvisioning(t *testing.T) {
	h := newHarness(true)
	h.m.Handle(EventPeerAttached)

	h.m.Handle(EventPeerDetached)
	assert.Equal(t, StateDisconnected, h.m.State())
	assert.Equal(t, 1, h.drops)
	assert.Equal(t, []string{"greenhouse"}, h.radio.joins)
}

func TestUnprovisionedJoinIsSkipped(t *testing.T) {
	h := newHarness(false)
	h.m.Handle(EventJoined)

	h.m.Handle(EventLeft)
	assert.Empty(t, h.radio.joins)
	assert.True(t, h.radio.apUp)
}

func TestReentrantEventsAreIdempotent(t *testing.T) {
	h := newHarness(true)
	h.m.Handle(EventJoined)

	h.m.Handle(EventJoined)
	assert.Equal(t, StateConnected, h.m.State())
	assert.Same(t, h.commlink, h.m.Active())

	h.m.Handle(EventPeerDetached)
	assert.Equal(t, StateConnected, h.m.State())
}

func TestLossThenRejoinRestoresOnlyCommlink(t *testing.T) {
	h := newHarness(true)
	h.m.Handle(EventJoined)
	h.m.Handle(EventLeft)

	h.m.Handle(EventJoined)
	assert.Equal(t, StateConnected, h.m.State())
	assert.Same(t, h.commlink, h.m.Active())
	assert.False(t, h.radio.apUp)
}

func TestJoinDuringProvisioningWinsOverPeer(t *testing.T) {
	h := newHarness(true)
	h.m.Handle(EventPeerAttached)
	h.m.Handle(EventClientAccepted)

	h.m.Handle(EventJoined)
	assert.Equal(t, StateConnected, h.m.State())
	assert.Same(t, h.commlink, h.m.Active())
	assert.Equal(t, 1, h.drops)
}

func TestWatcherSynthesizesEdges(t *testing.T) {
	h := newHarness(true)
	status := LinkStatus{}
	var statusErr error
	task := NewWatcherTask(h.m, func() (LinkStatus, error) { return status, statusErr })

	now := time.Date(2026, 4, 12, 8, 0, 0, 0, time.UTC)

	task.Run(now)
	assert.Equal(t, StateDisconnected, h.m.State())

	status.Joined = true
	task.Run(now.Add(WatchInterval))
	assert.Equal(t, StateConnected, h.m.State())

	// A failed poll must not fabricate a "left" edge.
	statusErr = errors.New("nmcli timeout")
	task.Run(now.Add(2 * WatchInterval))
	assert.Equal(t, StateConnected, h.m.State())

	statusErr = nil
	status.Joined = false
	task.Run(now.Add(3 * WatchInterval))
	assert.Equal(t, StateDisconnected, h.m.State())

	status.PeerAttached = true
	task.Run(now.Add(4 * WatchInterval))
	assert.Equal(t, StateProvisioningOpen, h.m.State())

	status.PeerAttached = false
	task.Run(now.Add(5 * WatchInterval))
	assert.Equal(t, StateDisconnected, h.m.State())
}
