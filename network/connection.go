package network

import (
	"encoding/json"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// outboundQueueSize bounds the per-connection send backlog. A client that
// cannot drain this many envelopes is dropped instead of stalling the
// sender (see ErrSendQueueFull).
const outboundQueueSize = 64

var (
	ErrSendQueueFull = errors.New("outbound queue full")
	ErrConnClosed    = errors.New("connection closed")
	ErrBadEnvelope   = errors.New("malformed envelope")
)

type Connection interface {
	Send(env *Envelope) error
	ReadEnvelope() (*Envelope, error)
	Close() error
	RemoteAddr() net.Addr
	SetHeartbeat(interval time.Duration)
}

// WSConnection frames envelopes as JSON text messages over a websocket.
// Writes go through a bounded queue drained by a single writer goroutine,
// so Send never blocks on a slow peer.
type WSConnection struct {
	conn      *websocket.Conn
	outbound  chan *Envelope
	closeOnce sync.Once
	closed    chan struct{}
	heartbeat time.Duration
}

func NewWSConnection(conn *websocket.Conn) *WSConnection {
	c := &WSConnection{
		conn:     conn,
		outbound: make(chan *Envelope, outboundQueueSize),
		closed:   make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *WSConnection) writeLoop() {
	for {
		select {
		case env := <-c.outbound:
			data, err := json.Marshal(env)
			if err != nil {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

// Send enqueues an envelope for delivery. It fails fast with
// ErrSendQueueFull when the peer's backlog is exhausted; callers treat that
// as a dead connection.
func (c *WSConnection) Send(env *Envelope) error {
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}

	select {
	case c.outbound <- env:
		return nil
	default:
		c.Close()
		return ErrSendQueueFull
	}
}

func (c *WSConnection) ReadEnvelope() (*Envelope, error) {
	msgType, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if msgType != websocket.TextMessage {
		return nil, ErrBadEnvelope
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, ErrBadEnvelope
	}
	if env.Type == "" {
		return nil, ErrBadEnvelope
	}

	if c.heartbeat > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.heartbeat * 2))
	}
	return &env, nil
}

func (c *WSConnection) SetHeartbeat(interval time.Duration) {
	c.heartbeat = interval
	c.conn.SetReadDeadline(time.Now().Add(interval * 2))
}

func (c *WSConnection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

func (c *WSConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
