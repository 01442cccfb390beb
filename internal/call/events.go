package call

import (
	"github.com/yoockh/civicvoice/internal/providers/live"
)

// Every event that originates outside the loop carries the generation of
// the session that produced it. Events from an older generation are stale.

type connectedEvent struct {
	gen uint64
	res *resources
	err error
}

type peerEvent struct {
	gen uint64
	msg *live.Message
}

// peerDoneEvent reports the end of the peer channel. A nil err is a normal
// close by the remote side.
type peerDoneEvent struct {
	gen uint64
	err error
}

type chunkEndedEvent struct {
	gen uint64
	id  uint64
}

type autoEndEvent struct {
	gen uint64
}

type startCmd struct {
	reply chan State
}

type endCmd struct {
	reply chan struct{}
}

type clearCmd struct {
	reply chan struct{}
}

type snapshotCmd struct {
	reply chan Snapshot
}
