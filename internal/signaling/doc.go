// Package signaling implements the server side of the rendezvous protocol:
// one websocket connection per member, room create/join/leave bookkeeping,
// and relaying of opaque negotiation payloads between members.
//
// Each inbound message is handled to completion on its connection's read
// goroutine; all room state mutation funnels through room.Directory, which
// serializes it. Outbound delivery goes through a per-connection buffered
// queue drained by a dedicated write goroutine, so one slow reader cannot
// stall the rest of a room.
package signaling
