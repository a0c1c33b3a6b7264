package session

import "sync"

// Role is which side of the negotiation this client plays for one peer.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	if r == RoleResponder {
		return "responder"
	}
	return "initiator"
}

// State is the lifecycle of a direct channel to one peer.
type State int

const (
	StateIdle State = iota
	StateNegotiating
	StateChannelOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNegotiating:
		return "negotiating"
	case StateChannelOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "idle"
	}
}

// PeerSession is this client's direct-channel state for one remote peer.
// Fields are guarded by the owning Coordinator's lock.
type PeerSession struct {
	id    string
	role  Role
	state State
	link  Link

	// answered is set once an initiator has the remote answer. Candidates
	// that arrive before it come from a link the peer already abandoned.
	answered bool
}

// PeerInfo is a snapshot of one room member as seen by this client.
type PeerInfo struct {
	ID        string
	Role      Role
	State     State
	Encrypted bool
}

// taskQueue runs tasks one at a time in submission order. Pushing never
// blocks; a drain goroutine exists only while work is pending.
type taskQueue struct {
	mu      sync.Mutex
	tasks   []func()
	running bool
}

func (q *taskQueue) push(task func()) {
	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.mu.Unlock()

	go q.drain()
}

func (q *taskQueue) drain() {
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		task()
	}
}
