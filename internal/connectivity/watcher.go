package connectivity

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pandora-iot/pot-controller/internal/scheduler"
)

const WatchInterval = time.Second

// LinkStatus is a snapshot of the radio as seen from the platform.
type LinkStatus struct {
	Joined       bool
	PeerAttached bool
}

// NewWatcherTask polls the radio status and turns level changes into the
// four platform edges. It runs in the base group so connectivity events
// keep flowing no matter which dynamic group is active. A failed status
// poll keeps the previous snapshot; no edges fire on stale data.
func NewWatcherTask(m *Manager, status func() (LinkStatus, error)) *scheduler.Task {
	var prev LinkStatus
	return scheduler.NewTask("link-watcher", WatchInterval, func(now time.Time) {
		cur, err := status()
		if err != nil {
			log.Error().Err(err).Msg("failed to poll link status")
			return
		}

		if cur.Joined && !prev.Joined {
			m.Handle(EventJoined)
		}
		if !cur.Joined && prev.Joined {
			m.Handle(EventLeft)
		}
		if cur.PeerAttached && !prev.PeerAttached {
			m.Handle(EventPeerAttached)
		}
		if !cur.PeerAttached && prev.PeerAttached {
			m.Handle(EventPeerDetached)
		}
		prev = cur
	})
}
