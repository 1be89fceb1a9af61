// Package protocol defines the wire schema for the signaling channel.
//
// Every frame is a UTF-8 JSON object with a required "type" tag. The package
// decodes frames once at the boundary into a closed set of envelope kinds and
// validates the fields each kind requires. Anything that does not parse or
// validate is reported as an error so callers can discard it without side
// effects; the relay itself never inspects the opaque negotiation payload
// carried by "signal" frames.
package protocol
