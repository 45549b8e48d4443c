package clientapi

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/flightlabs/aerodb/nodeapi"
)

// Client is a connection to one node's client port. Statements run
// sequentially; the server keeps per-connection session state, so a USE
// issued here applies to later statements on the same client.
type Client struct {
	mut sync.Mutex
	tcp net.Conn
}

func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer

	tcp, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	return &Client{tcp: tcp}, nil
}

func (c *Client) Close() error {
	return c.tcp.Close()
}

// Execute runs one statement at the given consistency level (empty means
// quorum). Server-side failures come back as *Error.
func (c *Client) Execute(ctx context.Context, statement, consistency string) (*QueryResponse, error) {
	c.mut.Lock()
	defer c.mut.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(30 * time.Second)
	}

	if err := c.tcp.SetDeadline(deadline); err != nil {
		return nil, err
	}

	req := &QueryRequest{Statement: statement, Consistency: consistency}

	if err := nodeapi.WriteFrame(c.tcp, KindQuery, req); err != nil {
		return nil, fmt.Errorf("write frame: %w", err)
	}

	kind, body, err := nodeapi.ReadFrame(c.tcp)
	if err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}

	switch kind {
	case KindResult:
		var resp QueryResponse
		if err := msgpack.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("unmarshal response: %w", err)
		}

		return &resp, nil

	case KindError:
		var resp ErrorResponse
		if err := msgpack.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("unmarshal error response: %w", err)
		}

		return nil, &Error{Code: resp.Code, Message: resp.Message}

	default:
		return nil, fmt.Errorf("unexpected response kind: %d", kind)
	}
}
