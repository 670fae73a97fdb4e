package lgrbus

/*
Cluster transport.

A bus never talks to other processes itself: it is given a Transport that
tells it whether this process is the primary, forwards worker messages to
the primary and hands the primary the messages of its workers. The payload
moved between processes is an opaque byte slice holding a ClusterMessage.

	LocalTransport   single process, always primary (default)
	MemoryCluster    one primary and any number of workers in one process
	wstransport      primary listens on a websocket, workers dial it
*/

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/abyssdigger/lgrbus/internal/apperrors"
)

// Transport connects a bus to the other processes of a cluster.
type Transport interface {
	// IsPrimary is fixed for the life of the transport.
	IsPrimary() bool
	// WorkerID identifies a worker inside its cluster (0 on the primary).
	WorkerID() int
	// SendToPrimary forwards one message; only called on workers.
	SendToPrimary(msg []byte) error
	// OnMessageFromWorker installs the receiver of forwarded messages; only
	// called on the primary, before any message is expected.
	OnMessageFromWorker(handler func(msg []byte))
	Close() error
}

// ClusterMessage is what a worker sends to its primary.
type ClusterMessage struct {
	Topic string `json:"topic"`
	Data  string `json:"data"`
}

// EncodeClusterMessage wraps a serialized event into a ClusterMessage.
func EncodeClusterMessage(serialized string) ([]byte, error) {
	return json.Marshal(ClusterMessage{Topic: CLUSTER_TOPIC, Data: serialized})
}

// DecodeClusterMessage extracts the serialized event of a ClusterMessage.
// ok is false for malformed messages and for any other topic.
func DecodeClusterMessage(msg []byte) (data string, ok bool) {
	var m ClusterMessage
	if err := json.Unmarshal(msg, &m); err != nil || m.Topic != CLUSTER_TOPIC {
		return "", false
	}
	return m.Data, true
}

/////////////////////////////////////////////////////////////////////////////////////////

// LocalTransport is the transport of a process without a cluster: it is its
// own primary and no message ever arrives.
type LocalTransport struct{}

func (LocalTransport) IsPrimary() bool { return true }

func (LocalTransport) WorkerID() int { return 0 }

func (LocalTransport) SendToPrimary([]byte) error {
	return apperrors.Newf(apperrors.ErrTransportSend, "local transport has no primary to send to")
}

func (LocalTransport) OnMessageFromWorker(func([]byte)) {}

func (LocalTransport) Close() error { return nil }

/////////////////////////////////////////////////////////////////////////////////////////

var errNoPrimaryHandler = errors.New("primary does not listen yet")

// MemoryCluster simulates a primary and its workers inside one process. Each
// transport it hands out is meant for its own bus.
type MemoryCluster struct {
	mtx     sync.RWMutex
	handler func([]byte)
	closed  bool
}

func NewMemoryCluster() *MemoryCluster {
	return &MemoryCluster{}
}

// Primary returns the transport of the primary bus.
func (c *MemoryCluster) Primary() Transport {
	return &memoryNode{cluster: c, primary: true}
}

// Worker returns the transport of worker id (ids start at 1).
func (c *MemoryCluster) Worker(id int) Transport {
	return &memoryNode{cluster: c, id: id}
}

func (c *MemoryCluster) deliver(msg []byte) error {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	if c.closed {
		return apperrors.Newf(apperrors.ErrTransportClose, "memory cluster is closed")
	}
	if c.handler == nil {
		return apperrors.NewAppError(apperrors.ErrTransportSend, "cannot forward message", errNoPrimaryHandler)
	}
	// the handler must not keep the slice
	c.handler(append([]byte(nil), msg...))
	return nil
}

type memoryNode struct {
	cluster *MemoryCluster
	id      int
	primary bool
}

func (n *memoryNode) IsPrimary() bool { return n.primary }

func (n *memoryNode) WorkerID() int { return n.id }

func (n *memoryNode) SendToPrimary(msg []byte) error {
	if n.primary {
		return apperrors.Newf(apperrors.ErrTransportSend, "primary cannot send to itself")
	}
	return n.cluster.deliver(msg)
}

func (n *memoryNode) OnMessageFromWorker(handler func([]byte)) {
	if !n.primary {
		return
	}
	n.cluster.mtx.Lock()
	defer n.cluster.mtx.Unlock()
	n.cluster.handler = handler
}

// Close of the primary closes the whole cluster; closing a worker is a no-op.
func (n *memoryNode) Close() error {
	if n.primary {
		n.cluster.mtx.Lock()
		defer n.cluster.mtx.Unlock()
		n.cluster.closed = true
		n.cluster.handler = nil
	}
	return nil
}
