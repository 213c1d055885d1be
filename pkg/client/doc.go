// Package client streams control events and arrays to a trialstream server.
//
// A Streamer owns one WebSocket connection. A single writer goroutine
// performs every write, and SendArray hands it the header and the payload
// as one command, so a header and its binary frame are always adjacent on
// the wire no matter how many goroutines send concurrently.
//
// Sends are fire-and-forget: when the streamer is not connected, or its
// queue is full, the message is dropped with a warning. There is no
// retry, replay or backpressure.
//
//	s := client.New("ws://127.0.0.1:8765/trials")
//	if err := s.Start(ctx); err != nil {
//		return err
//	}
//	defer s.Close()
//
//	s.SendEvent("PrepDM", map[string]any{"trial": 1})
//	s.SendArray("cursor_trace", trace, 1, map[string]any{"fs": 50.0})
package client
