// Package protocol implements the wire layer of the embedded compiler
// protocol: varint length-prefix framing over a raw byte stream, and the
// message codec that turns typed protocol messages into frame payloads.
//
// The protocol is a sequence of frames on each direction of the compiler
// process's stdio channel:
//
//	<varint length><message bytes> <varint length><message bytes> ...
//
// The length prefix is an unsigned little-endian base-128 varint (high bit
// of each byte marks continuation). The framing layer treats message bytes
// as opaque; message structure is the codec's concern.
//
// Messages are a closed union discriminated by Kind. Requests and responses
// carry a correlating ID; both peers draw from the same ID space within a
// compilation, so a request initiated by the compiler (a function call or an
// import) is answered with a response carrying the compiler's chosen ID.
// Events carry ID zero and correlate with nothing.
package protocol
