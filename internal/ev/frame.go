package ev

import (
	"fmt"
	"net"
	"time"
)

const writeTimeout = 30 * time.Second

// writeStreamHeader writes the fixed HTTP/1.0 response block that
// precedes the event stream. This is a minimal raw responder, not a
// full HTTP stack; the header shape is part of the wire contract.
func writeStreamHeader(conn net.Conn, origin string) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err := fmt.Fprintf(conn,
		"HTTP/1.0 200 OK\n"+
			"Content-Type: text/event-stream\n"+
			"Cache: nocache\n"+
			"Connection: keep-alive\n"+
			"Access-Control-Allow-Origin: %s\n\n", origin)
	return err
}

// writeData emits one message as a single SSE data frame, payload
// copied verbatim.
func writeData(conn net.Conn, payload []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err := fmt.Fprintf(conn, "data: %s\n\n", payload)
	return err
}

func writeEvent(conn net.Conn, name string) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err := fmt.Fprintf(conn, "event: %s\n\n", name)
	return err
}
