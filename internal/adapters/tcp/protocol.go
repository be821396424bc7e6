// Package tcp implements the one-query-per-connection line lookup protocol.
//
// A client connects (plain TCP or TLS), writes the query as raw bytes and
// ends the request with the terminator byte or by half-closing its side.
// The server answers with exactly one newline-terminated ASCII line from a
// fixed set and closes the connection.
package tcp

// Terminator marks the end of a request within the byte stream.
const Terminator byte = 0x00

// chunkSize is the read size used while accumulating a request.
const chunkSize = 1024

// DefaultMaxPayload is the request size limit when none is configured.
const DefaultMaxPayload = 1024

// Response is one of the fixed reply lines.
type Response string

// Reply lines. Each is sent verbatim, newline included.
const (
	RespExists          Response = "STRING EXISTS\n"
	RespNotFound        Response = "STRING NOT FOUND\n"
	RespPayloadTooLarge Response = "PAYLOAD TOO LARGE\n"
	RespNoData          Response = "ERROR: No data received\n"
	RespInvalidUTF8     Response = "ERROR: Invalid UTF-8\n"
	RespEmptyQuery      Response = "ERROR: Empty query\n"
	RespInternalError   Response = "ERROR: Internal server error\n"
	RespEmptyResponse   Response = "ERROR: Empty response generated\n"
)

// Responses lists every reply line, in the order used for statistics.
var Responses = []Response{
	RespExists,
	RespNotFound,
	RespPayloadTooLarge,
	RespNoData,
	RespInvalidUTF8,
	RespEmptyQuery,
	RespInternalError,
	RespEmptyResponse,
}

// Label returns the reply without its trailing newline, for logs and stats.
func (r Response) Label() string {
	if n := len(r); n > 0 && r[n-1] == '\n' {
		return string(r[:n-1])
	}
	return string(r)
}

// IsError reports whether the reply is a protocol or internal error rather
// than a search outcome.
func (r Response) IsError() bool {
	return r != RespExists && r != RespNotFound
}
