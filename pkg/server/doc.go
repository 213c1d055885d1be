// Package server implements the receiving side of the trialstream protocol.
//
// Each WebSocket connection gets a Session with its own two-state machine:
//
//	Idle             --array_header-->  AwaitingPayload
//	AwaitingPayload  --array_header-->  AwaitingPayload (previous header displaced)
//	AwaitingPayload  --binary-------->  Idle (array reconstructed and stored)
//	Idle             --binary-------->  Idle (error reply: binary_without_header)
//
// Control events are accepted in either state, persisted once and
// acknowledged once. Malformed JSON is logged and discarded without a reply.
// Persistence and write failures close the connection with code 1011.
//
// Server wires sessions to an HTTP router:
//
//	GET /         status document
//	GET /health   liveness probe
//	GET /metrics  Prometheus exposition
//	GET /trials   WebSocket endpoint (configurable)
//
// Example:
//
//	rec, _ := store.NewRecorder(store.RecorderConfig{DataDir: "data"})
//	srv := server.New(server.DefaultServerConfig(), rec)
//	log.Fatal(srv.Run())
package server
