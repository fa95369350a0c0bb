package protocol

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/maxkra/sasshost/errors"
)

// MaxFrameLen is the largest payload length the decoder will accept.
// The protocol itself places no bound on frame size; this is a sanity
// cutoff so a corrupted length prefix fails immediately instead of
// making the reader wait for gigabytes that will never arrive.
const MaxFrameLen = 1 << 30 // 1 GiB

// maxPrefixLen is the longest legal varint prefix. A 64-bit value fits in
// ten base-128 digits; an eleventh continuation byte is malformed.
const maxPrefixLen = 10

// AppendFrame appends payload to dst as a single frame: its varint length
// prefix followed by the payload bytes.
func AppendFrame(dst, payload []byte) []byte {
	dst = protowire.AppendVarint(dst, uint64(len(payload)))
	return append(dst, payload...)
}

// FrameDecoder incrementally splits a byte stream back into frame payloads.
// It is fed arbitrarily-chunked slices: a frame may arrive split across many
// feeds, and one feed may carry several whole frames plus a partial tail.
// Unconsumed prefix or payload bytes are retained for the next feed.
//
// A FrameDecoder is not safe for concurrent use; the session's single
// reader owns it.
type FrameDecoder struct {
	prefix []byte // partial length prefix, while want < 0
	want   int    // payload length once the prefix is complete
	buf    []byte // partial payload
	failed bool
}

// NewFrameDecoder returns a decoder positioned at a frame boundary.
func NewFrameDecoder() *FrameDecoder {
	return &FrameDecoder{want: -1}
}

// Feed consumes the next chunk of the stream and returns the payloads of
// every frame completed by it, in stream order. The returned slices are
// copies and remain valid after the next Feed.
//
// A malformed length prefix (overlong varint, or a length beyond
// MaxFrameLen) returns a protocol error; the decoder is unusable afterwards.
func (d *FrameDecoder) Feed(chunk []byte) ([][]byte, error) {
	if d.failed {
		return nil, errors.Protocol("frame decoder used after a framing error")
	}

	var frames [][]byte
	for len(chunk) > 0 {
		if d.want < 0 {
			// Accumulate prefix bytes until one clears the continuation bit.
			b := chunk[0]
			chunk = chunk[1:]
			d.prefix = append(d.prefix, b)
			if b&0x80 != 0 {
				if len(d.prefix) >= maxPrefixLen {
					d.failed = true
					return nil, errors.Protocol("frame length prefix exceeds %d bytes", maxPrefixLen)
				}
				continue
			}
			n, cnt := protowire.ConsumeVarint(d.prefix)
			if cnt < 0 || cnt != len(d.prefix) {
				d.failed = true
				return nil, errors.Protocol("malformed frame length prefix % x", d.prefix)
			}
			if n > MaxFrameLen {
				d.failed = true
				return nil, errors.Protocol("frame length %d exceeds maximum %d", n, MaxFrameLen)
			}
			d.prefix = d.prefix[:0]
			d.want = int(n)
			if d.want == 0 {
				frames = append(frames, []byte{})
				d.want = -1
				continue
			}
		}

		take := d.want - len(d.buf)
		if take > len(chunk) {
			take = len(chunk)
		}
		d.buf = append(d.buf, chunk[:take]...)
		chunk = chunk[take:]

		if len(d.buf) == d.want {
			frames = append(frames, d.buf)
			d.buf = nil
			d.want = -1
		}
	}
	return frames, nil
}
