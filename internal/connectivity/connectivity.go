package connectivity

import (
	"sync/atomic"

	"github.com/bassista/go_lmsync/internal/logger"
)

// Monitor reports whether the network is believed reachable.
type Monitor interface {
	IsReachable() bool
}

// Static is a Monitor with a fixed answer.
type Static bool

func (s Static) IsReachable() bool { return bool(s) }

// Online always reports reachable.
var Online Monitor = Static(true)

// Toggle is a Monitor whose state can be flipped at runtime, for instance by
// a platform reachability callback or the inspector.
type Toggle struct {
	offline atomic.Bool
}

// NewToggle creates a Toggle in the given state.
func NewToggle(reachable bool) *Toggle {
	t := &Toggle{}
	t.offline.Store(!reachable)
	return t
}

func (t *Toggle) IsReachable() bool { return !t.offline.Load() }

// Set updates reachability and logs transitions.
func (t *Toggle) Set(reachable bool) {
	if wasOffline := t.offline.Swap(!reachable); wasOffline == reachable {
		state := "offline"
		if reachable {
			state = "online"
		}
		logger.WithComponent("connectivity").Infof("network is now %s", state)
	}
}
