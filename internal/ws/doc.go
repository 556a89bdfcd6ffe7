// Package ws provides the websocket transport for the rdio protocol client.
//
// This package handles:
//   - Dialing ws:// and wss:// endpoints (http and https are mapped)
//   - Handshake status errors
//   - Text frame send and receive bounded by the caller's context
//   - A frame size limit large enough for inline call audio
//
// There are no retries; a broken connection is reported to the caller.
//
// # Usage
//
//	conn, err := ws.Dial(ctx, "wss://scanner.example.org/", ws.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//
//	client := rdio.NewClient(conn, rdio.Options{})
package ws
