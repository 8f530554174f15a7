package connectivity

import (
	"github.com/rs/zerolog/log"

	"github.com/pandora-iot/pot-controller/internal/datadog"
	"github.com/pandora-iot/pot-controller/internal/model"
	"github.com/pandora-iot/pot-controller/internal/scheduler"
)

type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateProvisioningOpen
	StateProvisioningClient
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateProvisioningOpen:
		return "provisioning_open"
	case StateProvisioningClient:
		return "provisioning_client"
	}
	return "unknown"
}

type Event int

const (
	// Platform edges, synthesized by the watcher task.
	EventJoined Event = iota
	EventLeft
	EventPeerAttached
	EventPeerDetached

	// Provisioning edges, reported by the provisioning handler.
	EventClientAccepted
	EventConfigReceived
)

func (e Event) String() string {
	switch e {
	case EventJoined:
		return "joined"
	case EventLeft:
		return "left"
	case EventPeerAttached:
		return "peer_attached"
	case EventPeerDetached:
		return "peer_detached"
	case EventClientAccepted:
		return "client_accepted"
	case EventConfigReceived:
		return "config_received"
	}
	return "unknown"
}

type Action int

const (
	ActionActivateCommlink Action = iota
	ActionDeactivateCommlink
	ActionActivateProvisioning
	ActionDeactivateProvisioning
	ActionStartAP
	ActionStopAP
	ActionJoin
	ActionDropClient
	ActionForceOutputsOff
)

// Transition is the whole state machine. It touches nothing; the Manager
// executes the returned actions in order. Events that make no sense in the
// current state return it unchanged with no actions, which is what makes
// re-entrant transitions safe.
func Transition(s State, e Event) (State, []Action) {
	switch s {
	case StateDisconnected:
		switch e {
		case EventJoined:
			return StateConnected, []Action{ActionDeactivateProvisioning, ActionStopAP, ActionActivateCommlink}
		case EventPeerAttached:
			return StateProvisioningOpen, []Action{ActionActivateProvisioning}
		}

	case StateConnected:
		switch e {
		case EventLeft:
			return StateDisconnected, []Action{ActionDeactivateCommlink, ActionForceOutputsOff, ActionStartAP, ActionJoin}
		}

	case StateProvisioningOpen:
		switch e {
		case EventClientAccepted:
			return StateProvisioningClient, nil
		case EventConfigReceived:
			// A complete record is itself the disconnect trigger.
			return StateDisconnected, []Action{ActionDropClient, ActionDeactivateProvisioning, ActionJoin}
		case EventPeerDetached:
			return StateDisconnected, []Action{ActionDropClient, ActionDeactivateProvisioning, ActionJoin}
		case EventJoined:
			// A join landing while a peer holds the AP; honor it, the
			// commlink is the device's reason to exist.
			return StateConnected, []Action{ActionDropClient, ActionDeactivateProvisioning, ActionStopAP, ActionActivateCommlink}
		}

	case StateProvisioningClient:
		switch e {
		case EventConfigReceived:
			return StateDisconnected, []Action{ActionDropClient, ActionDeactivateProvisioning, ActionJoin}
		case EventPeerDetached:
			return StateDisconnected, []Action{ActionDropClient, ActionDeactivateProvisioning, ActionJoin}
		case EventJoined:
			return StateConnected, []Action{ActionDropClient, ActionDeactivateProvisioning, ActionStopAP, ActionActivateCommlink}
		}
	}

	return s, nil
}

// Radio is the WiFi role control surface the manager drives.
type Radio interface {
	Join(ssid, psk string) error
	StartFallbackAP() error
	StopFallbackAP() error
}

// Manager owns which dynamic task group the scheduler polls. At most one
// of {commlink, provisioning} is ever active; the idle group stands in
// when neither is.
type Manager struct {
	state State

	commlink     *scheduler.Group
	provisioning *scheduler.Group
	idle         *scheduler.Group
	active       *scheduler.Group

	st         *model.DeviceState
	radio      Radio
	dropClient func()
	outputsOff func()
}

func NewManager(st *model.DeviceState, commlink, provisioning *scheduler.Group, radio Radio, dropClient, outputsOff func()) *Manager {
	idle := scheduler.NewGroup("idle")
	return &Manager{
		state:        StateDisconnected,
		commlink:     commlink,
		provisioning: provisioning,
		idle:         idle,
		active:       idle,
		st:           st,
		radio:        radio,
		dropClient:   dropClient,
		outputsOff:   outputsOff,
	}
}

func (m *Manager) State() State { return m.state }

// Active is handed to the scheduler as its dynamic-group source.
func (m *Manager) Active() *scheduler.Group { return m.active }

func (m *Manager) Handle(e Event) {
	next, actions := Transition(m.state, e)
	if next == m.state && len(actions) == 0 {
		log.Debug().Stringer("state", m.state).Stringer("event", e).Msg("Connectivity event ignored")
		return
	}

	log.Info().
		Stringer("from", m.state).
		Stringer("to", next).
		Stringer("event", e).
		Msg("Connectivity transition")
	datadog.Incr("connectivity.transition")

	m.state = next
	for _, a := range actions {
		m.apply(a)
	}
}

func (m *Manager) apply(a Action) {
	switch a {
	case ActionActivateCommlink:
		m.active = m.commlink
	case ActionDeactivateCommlink:
		if m.active == m.commlink {
			m.active = m.idle
		}
	case ActionActivateProvisioning:
		m.active = m.provisioning
	case ActionDeactivateProvisioning:
		if m.active == m.provisioning {
			m.active = m.idle
		}
	case ActionStartAP:
		if err := m.radio.StartFallbackAP(); err != nil {
			log.Error().Err(err).Msg("failed to start fallback AP")
		}
	case ActionStopAP:
		if err := m.radio.StopFallbackAP(); err != nil {
			log.Error().Err(err).Msg("failed to stop fallback AP")
		}
	case ActionJoin:
		if !m.st.Init.Provisioned() {
			log.Warn().Msg("No network credentials yet, staying on fallback AP")
			return
		}
		if err := m.radio.Join(m.st.Init.SSID, m.st.Init.Passphrase); err != nil {
			log.Error().Err(err).Str("ssid", m.st.Init.SSID).Msg("failed to start network join")
		}
	case ActionDropClient:
		m.dropClient()
	case ActionForceOutputsOff:
		m.outputsOff()
	}
}
