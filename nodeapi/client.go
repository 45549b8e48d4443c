package nodeapi

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/flightlabs/aerodb/membership"
	"github.com/flightlabs/aerodb/storage"
)

// Dialer establishes a connection to a peer's internode listener.
type Dialer func(ctx context.Context, addr string) (*Conn, error)

// Dial is the default Dialer.
func Dial(ctx context.Context, addr string) (*Conn, error) {
	var d net.Dialer

	tcp, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	return &Conn{tcp: tcp}, nil
}

// Conn is a client connection to one peer. Requests on a connection are
// strictly sequential: a frame out, a frame back. Concurrency comes from the
// coordinator fanning out across connections, not from multiplexing.
type Conn struct {
	mut    sync.Mutex
	tcp    net.Conn
	broken atomic.Bool
}

func (c *Conn) Close() error {
	return c.tcp.Close()
}

// Broken reports whether the connection's stream can no longer be trusted.
// A timed-out or failed exchange may leave a half-written frame on the wire,
// after which the connection must be discarded.
func (c *Conn) Broken() bool {
	return c.broken.Load()
}

// roundTrip sends one request frame and decodes the matching response frame.
func (c *Conn) roundTrip(ctx context.Context, kind uint8, req, resp any) error {
	c.mut.Lock()
	defer c.mut.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(10 * time.Second)
	}

	if err := c.tcp.SetDeadline(deadline); err != nil {
		c.broken.Store(true)
		return err
	}

	if err := WriteFrame(c.tcp, kind, req); err != nil {
		c.broken.Store(true)
		return fmt.Errorf("write frame: %w", err)
	}

	respKind, body, err := ReadFrame(c.tcp)
	if err != nil {
		c.broken.Store(true)
		return fmt.Errorf("read frame: %w", err)
	}

	if respKind == KindError {
		var remote ErrorResponse
		if err := msgpack.Unmarshal(body, &remote); err != nil {
			return fmt.Errorf("unmarshal error response: %w", err)
		}

		return &RemoteError{Code: remote.Code, Message: remote.Message}
	}

	if resp != nil {
		if err := msgpack.Unmarshal(body, resp); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

// PushPull performs one gossip exchange over the connection.
func (c *Conn) PushPull(ctx context.Context, digest *membership.Digest) (*membership.Digest, error) {
	var resp GossipRequest

	if err := c.roundTrip(ctx, KindGossip, toWireDigest(digest), &resp); err != nil {
		return nil, err
	}

	return fromWireDigest(&resp), nil
}

// Write applies a mutation on the peer replica.
func (c *Conn) Write(ctx context.Context, req *WriteRequest) error {
	return c.roundTrip(ctx, KindWrite, req, nil)
}

// Read fetches a row or partition from the peer replica.
func (c *Conn) Read(ctx context.Context, req *ReadRequest) ([]storage.Row, error) {
	var resp RowsResponse

	if err := c.roundTrip(ctx, KindRead, req, &resp); err != nil {
		return nil, err
	}

	return resp.Rows, nil
}

// ApplySchema applies a DDL statement on the peer replica.
func (c *Conn) ApplySchema(ctx context.Context, req *SchemaRequest) error {
	return c.roundTrip(ctx, KindSchema, req, nil)
}
