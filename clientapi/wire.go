package clientapi

import "fmt"

// Frame kinds of the client protocol. It shares the internode framing
// (kind byte, length-prefixed msgpack payload) but is a separate, smaller
// vocabulary on a separate port.
const (
	KindQuery  uint8 = 1
	KindResult uint8 = 2
	KindError  uint8 = 3
)

// Error codes returned to clients.
const (
	CodeParseError      = "ParseError"
	CodeSchemaError     = "SchemaError"
	CodeUnavailable     = "Unavailable"
	CodeTimeout         = "Timeout"
	CodeConnectionError = "ConnectionError"
	CodeServerError     = "ServerError"
)

// QueryRequest is one statement to execute. Consistency is the level name
// (one, quorum, all); empty means quorum.
type QueryRequest struct {
	Statement   string `msgpack:"s"`
	Consistency string `msgpack:"c"`
}

type ResultColumn struct {
	Name string `msgpack:"n"`
	Type string `msgpack:"t"`
}

// QueryResponse carries the result rows of a statement. Mutations and DDL
// return an empty response.
type QueryResponse struct {
	Columns []ResultColumn `msgpack:"c"`
	Rows    [][]string     `msgpack:"r"`
}

type ErrorResponse struct {
	Code    string `msgpack:"c"`
	Message string `msgpack:"m"`
}

// Error is a typed failure reported by the server.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
