package at

// Demux splits the single serial byte stream coming from the ESP8266 into
// two logical streams: control (command replies, status tokens, unsolicited
// notifications) and data (TCP payload carried inside +IPD frames).
//
// It is a byte-at-a-time state machine with no I/O of its own, so match,
// mismatch and flush behaviour can be tested apart from the goroutine that
// drives it. The zero value is ready to use.
type Demux struct {
	state     demuxState
	held      []byte // bytes held back since the '+' that opened a match
	length    int    // parsed payload length
	remaining int    // payload bytes still owed to the data stream

	ctrl []byte // routed output, reused across Feed calls
	data []byte
}

type demuxState int

const (
	stateIdle demuxState = iota
	stateMatching
	stateReadingLength
	stateReadingPayload
)

// maxPayloadLen bounds the +IPD length field. The ESP8266 frames at most one
// TCP segment per notification; anything far beyond that is line noise.
const maxPayloadLen = 1 << 16

// Feed consumes one byte and returns the bytes it routed to the control and
// data streams. No byte is ever dropped: every input byte ends up in exactly
// one of the two streams, or is consumed as +IPD framing, possibly after
// being held back during a match in progress. The returned slices are only
// valid until the next call.
func (d *Demux) Feed(c byte) (ctrl, data []byte) {
	d.ctrl = d.ctrl[:0]
	d.data = d.data[:0]
	d.step(c)
	return d.ctrl, d.data
}

func (d *Demux) step(c byte) {
	switch d.state {
	case stateIdle:
		d.idle(c)

	case stateMatching:
		if c == IPDHeader[len(d.held)] {
			d.held = append(d.held, c)
			if len(d.held) == len(IPDHeader) {
				d.state = stateReadingLength
			}
			return
		}
		// Failed match: everything held back goes to control, in order,
		// and the offending byte is re-evaluated under the idle rule.
		d.flush()
		d.idle(c)

	case stateReadingLength:
		switch {
		case c >= '0' && c <= '9':
			d.held = append(d.held, c)
			d.length = d.length*10 + int(c-'0')
			if d.length > maxPayloadLen {
				d.flush()
			}
		case c == ':' && len(d.held) > len(IPDHeader):
			if d.length == 0 {
				// Empty frame; the header is consumed outright.
				d.reset()
				return
			}
			d.remaining = d.length
			d.held = d.held[:0]
			d.state = stateReadingPayload
		default:
			// Garbage where a digit or ':' belongs is a failed match.
			d.flush()
			d.idle(c)
		}

	case stateReadingPayload:
		d.data = append(d.data, c)
		d.remaining--
		if d.remaining == 0 {
			d.reset()
		}
	}
}

func (d *Demux) idle(c byte) {
	if c == IPDHeader[0] {
		d.held = append(d.held[:0], c)
		d.state = stateMatching
		return
	}
	d.ctrl = append(d.ctrl, c)
}

func (d *Demux) flush() {
	d.ctrl = append(d.ctrl, d.held...)
	d.reset()
}

func (d *Demux) reset() {
	d.held = d.held[:0]
	d.length = 0
	d.remaining = 0
	d.state = stateIdle
}
