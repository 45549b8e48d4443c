package nodeapi

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/flightlabs/aerodb/membership"
	"github.com/flightlabs/aerodb/storage"
)

// serverRequestTimeout bounds the handling of a single peer request. It is
// deliberately longer than any client-side deadline, so the dialing side
// always gives up first.
const serverRequestTimeout = 30 * time.Second

// GossipHandler processes incoming gossip digests.
type GossipHandler interface {
	HandlePushPull(digest *membership.Digest) (*membership.Digest, error)
}

// ReplicaHandler processes replica-level sub-requests on the local node.
type ReplicaHandler interface {
	Write(ctx context.Context, req *WriteRequest) error
	Read(ctx context.Context, req *ReadRequest) ([]storage.Row, error)
	ApplySchema(ctx context.Context, req *SchemaRequest) error
}

// Server is the internode protocol listener. It owns no business logic: it
// decodes frames and dispatches them to the membership and replica handlers.
type Server struct {
	gossip  GossipHandler
	replica ReplicaHandler
	logger  kitlog.Logger

	mut      sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

func NewServer(gossip GossipHandler, replica ReplicaHandler, logger kitlog.Logger) *Server {
	return &Server{
		gossip:  gossip,
		replica: replica,
		logger:  kitlog.With(logger, "component", "nodeapi"),
		conns:   make(map[net.Conn]struct{}),
	}
}

// Serve accepts peer connections until the listener is closed. Each
// connection is handled by its own goroutine, so a slow peer never blocks
// gossip or replica traffic of the others.
func (s *Server) Serve(listener net.Listener) error {
	s.mut.Lock()
	s.listener = listener
	s.mut.Unlock()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}

			return err
		}

		s.track(conn)

		s.wg.Add(1)

		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)

			s.handleConn(conn)
		}()
	}
}

// Shutdown stops accepting connections and tears down the active ones.
func (s *Server) Shutdown() {
	s.mut.Lock()
	s.closed = true

	if s.listener != nil {
		_ = s.listener.Close()
	}

	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mut.Unlock()

	s.wg.Wait()
}

func (s *Server) track(conn net.Conn) {
	s.mut.Lock()
	defer s.mut.Unlock()

	if s.closed {
		_ = conn.Close()
		return
	}

	s.conns[conn] = struct{}{}
}

func (s *Server) untrack(conn net.Conn) {
	s.mut.Lock()
	defer s.mut.Unlock()

	delete(s.conns, conn)
	_ = conn.Close()
}

func (s *Server) handleConn(conn net.Conn) {
	for {
		kind, body, err := s.dispatch(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				level.Debug(s.logger).Log("msg", "peer connection closed", "err", err)
			}

			return
		}

		if err := s.respond(conn, kind, body); err != nil {
			level.Debug(s.logger).Log("msg", "failed to respond to peer", "err", err)
			return
		}
	}
}

// dispatch reads one request frame and executes it, returning the response
// kind and payload.
func (s *Server) dispatch(conn net.Conn) (uint8, any, error) {
	kind, body, err := ReadFrame(conn)
	if err != nil {
		return 0, nil, err
	}

	// A stuck handler must not pin the connection goroutine forever.
	ctx, cancel := context.WithTimeout(context.Background(), serverRequestTimeout)
	defer cancel()

	switch kind {
	case KindGossip:
		var req GossipRequest
		if err := msgpack.Unmarshal(body, &req); err != nil {
			return 0, nil, err
		}

		digest, err := s.gossip.HandlePushPull(fromWireDigest(&req))
		if err != nil {
			return KindError, errorResponse(err), nil
		}

		return KindGossip, toWireDigest(digest), nil

	case KindWrite:
		var req WriteRequest
		if err := msgpack.Unmarshal(body, &req); err != nil {
			return 0, nil, err
		}

		if err := s.replica.Write(ctx, &req); err != nil {
			return KindError, errorResponse(err), nil
		}

		return KindAck, &struct{}{}, nil

	case KindRead:
		var req ReadRequest
		if err := msgpack.Unmarshal(body, &req); err != nil {
			return 0, nil, err
		}

		rows, err := s.replica.Read(ctx, &req)
		if err != nil {
			return KindError, errorResponse(err), nil
		}

		return KindRows, &RowsResponse{Rows: rows}, nil

	case KindSchema:
		var req SchemaRequest
		if err := msgpack.Unmarshal(body, &req); err != nil {
			return 0, nil, err
		}

		if err := s.replica.ApplySchema(ctx, &req); err != nil {
			return KindError, errorResponse(err), nil
		}

		return KindAck, &struct{}{}, nil

	default:
		return KindError, &ErrorResponse{
			Code:    "protocol",
			Message: "unknown message kind",
		}, nil
	}
}

func (s *Server) respond(conn net.Conn, kind uint8, payload any) error {
	return WriteFrame(conn, kind, payload)
}

func errorResponse(err error) *ErrorResponse {
	code := "server"

	switch {
	case errors.Is(err, storage.ErrTableNotFound),
		errors.Is(err, storage.ErrKeyspaceNotFound):
		code = "schema"
	case errors.Is(err, membership.ErrWrongCluster):
		code = "cluster"
	}

	return &ErrorResponse{Code: code, Message: err.Error()}
}
