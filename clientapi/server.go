package clientapi

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

	"github.com/flightlabs/aerodb/nodeapi"
	"github.com/flightlabs/aerodb/query"
	"github.com/flightlabs/aerodb/replication"
	"github.com/flightlabs/aerodb/replication/consistency"
	"github.com/flightlabs/aerodb/storage"
)

const defaultRequestTimeout = 10 * time.Second

// Server is the client protocol listener. Each connection is a session: it
// runs statements sequentially and remembers the keyspace selected by USE.
// Every request gets exactly one terminal response frame.
type Server struct {
	executor *query.Executor
	logger   kitlog.Logger
	timeout  time.Duration

	mut      sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

func NewServer(executor *query.Executor, logger kitlog.Logger) *Server {
	return &Server{
		executor: executor,
		logger:   kitlog.With(logger, "component", "clientapi"),
		timeout:  defaultRequestTimeout,
		conns:    make(map[net.Conn]struct{}),
	}
}

// Serve accepts client connections until the listener is closed.
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

// Shutdown stops accepting connections and tears down the active sessions.
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
	var keyspace string

	for {
		kind, body, err := nodeapi.ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				level.Debug(s.logger).Log("msg", "client connection closed", "err", err)
			}

			return
		}

		respKind, resp := s.handleRequest(kind, body, &keyspace)

		if err := nodeapi.WriteFrame(conn, respKind, resp); err != nil {
			level.Debug(s.logger).Log("msg", "failed to respond to client", "err", err)
			return
		}
	}
}

func (s *Server) handleRequest(kind uint8, body []byte, keyspace *string) (uint8, any) {
	if kind != KindQuery {
		return KindError, &ErrorResponse{
			Code:    CodeServerError,
			Message: "unknown message kind",
		}
	}

	var req QueryRequest
	if err := msgpack.Unmarshal(body, &req); err != nil {
		return KindError, &ErrorResponse{
			Code:    CodeParseError,
			Message: "malformed request: " + err.Error(),
		}
	}

	lvl, err := consistency.Parse(req.Consistency)
	if err != nil {
		return KindError, &ErrorResponse{Code: CodeParseError, Message: err.Error()}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	result, newKeyspace, err := s.executor.Execute(ctx, req.Statement, *keyspace, lvl)
	if err != nil {
		return KindError, errorResponse(err)
	}

	*keyspace = newKeyspace

	resp := &QueryResponse{Rows: result.Rows}
	for _, col := range result.Columns {
		resp.Columns = append(resp.Columns, ResultColumn{
			Name: col.Name,
			Type: string(col.Type),
		})
	}

	return KindResult, resp
}

// errorResponse maps an execution error to its wire code. Parse and schema
// failures never left this node; the rest reflect the state of the cluster.
func errorResponse(err error) *ErrorResponse {
	var (
		parseErr  *query.ParseError
		schemaErr *query.SchemaError
		remoteErr *nodeapi.RemoteError
		netErr    net.Error
	)

	code := CodeServerError

	switch {
	case errors.As(err, &parseErr):
		code = CodeParseError
	case errors.As(err, &schemaErr),
		errors.Is(err, storage.ErrKeyspaceNotFound),
		errors.Is(err, storage.ErrTableNotFound),
		errors.Is(err, storage.ErrKeyspaceExists),
		errors.Is(err, storage.ErrTableExists):
		code = CodeSchemaError
	case errors.As(err, &remoteErr):
		if remoteErr.Code == "schema" {
			code = CodeSchemaError
		}
	case errors.Is(err, replication.ErrUnavailable):
		code = CodeUnavailable
	case errors.Is(err, replication.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		code = CodeTimeout
	case errors.As(err, &netErr):
		code = CodeConnectionError
	}

	return &ErrorResponse{Code: code, Message: err.Error()}
}
