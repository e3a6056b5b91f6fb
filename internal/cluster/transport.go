package cluster

import (
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"
)

// Conn is one framed, bidirectional connection to a peer, shared by every
// message the leader or follower task exchanges with it. Callers serialise
// their own request/response pairing; Conn only frames and unframes.
type Conn struct {
	mu   sync.Mutex
	conn net.Conn
}

func newConn(c net.Conn) *Conn { return &Conn{conn: c} }

// Send writes one message, framed and checksummed.
func (c *Conn) Send(msgType MessageType, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return writeFrame(c.conn, msgType, payload)
}

// Receive blocks for the next message on the connection.
func (c *Conn) Receive() (MessageType, []byte, error) {
	return readFrame(c.conn)
}

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.conn.Close() }

// SetDeadline bounds the next Send/Receive pair, so a dead peer fails fast
// instead of blocking the per-peer task forever.
func (c *Conn) SetDeadline(t time.Time) error { return c.conn.SetDeadline(t) }

// Transport dials and accepts the framed TCP connections replication tasks
// use, grounded on the same net.Listener/net.Dial construction used for
// Raft's own transport, minus the RPC layer itself (hand-rolled framing
// replaces connectrpc/protobuf; see DESIGN.md).
type Transport struct {
	listener  net.Listener
	timeout   time.Duration
	tlsConfig *tls.Config // nil means plaintext TCP

	mu    sync.Mutex
	conns map[string]*Conn
}

// Listen starts accepting connections on addr. accept is called once per
// newly accepted connection, in its own goroutine, until the listener is
// closed. A non-nil tlsConfig (built via tlsroots.Pool.MutualTLSConfig)
// upgrades the listener to mutual TLS; every Dial this Transport makes then
// also authenticates with that same config's client certificate.
func Listen(addr string, timeout time.Duration, tlsConfig *tls.Config, accept func(*Conn)) (*Transport, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("cluster: listen %s: %w", addr, err)
	}
	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
	}
	t := &Transport{listener: ln, timeout: timeout, tlsConfig: tlsConfig, conns: make(map[string]*Conn)}

	go func() {
		for {
			raw, err := ln.Accept()
			if err != nil {
				return
			}
			go accept(newConn(raw))
		}
	}()
	return t, nil
}

// Dial opens (or reuses) a framed connection to peerAddr.
func (t *Transport) Dial(peerAddr string) (*Conn, error) {
	t.mu.Lock()
	if c, ok := t.conns[peerAddr]; ok {
		t.mu.Unlock()
		return c, nil
	}
	t.mu.Unlock()

	var raw net.Conn
	var err error
	if t.tlsConfig != nil {
		dialer := &net.Dialer{Timeout: t.timeout}
		raw, err = tls.DialWithDialer(dialer, "tcp", peerAddr, t.tlsConfig)
	} else {
		raw, err = net.DialTimeout("tcp", peerAddr, t.timeout)
	}
	if err != nil {
		return nil, fmt.Errorf("cluster: dial %s: %w", peerAddr, err)
	}
	c := newConn(raw)

	t.mu.Lock()
	t.conns[peerAddr] = c
	t.mu.Unlock()
	return c, nil
}

// Drop closes and forgets a cached connection, forcing the next Dial to
// reconnect; the leader task calls this after a peer RPC fails so the next
// BecomeLeader attempt dials fresh.
func (t *Transport) Drop(peerAddr string) {
	t.mu.Lock()
	c, ok := t.conns[peerAddr]
	delete(t.conns, peerAddr)
	t.mu.Unlock()
	if ok {
		c.Close()
	}
}

// Close stops accepting connections and closes every cached dial.
func (t *Transport) Close() error {
	t.mu.Lock()
	for addr, c := range t.conns {
		c.Close()
		delete(t.conns, addr)
	}
	t.mu.Unlock()
	return t.listener.Close()
}

// Addr reports the listener's bound address.
func (t *Transport) Addr() net.Addr { return t.listener.Addr() }
