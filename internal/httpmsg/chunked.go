package httpmsg

// chunkedState tracks progress through a "hex-size CRLF bytes CRLF"
// sequence, terminated by a zero-size chunk.
type chunkedState struct {
	consumed    int // bytes of the chunked wire format consumed so far
	lastChunkAt int // offset of the terminating zero-size chunk's start
	done        bool
}

// parseChunkedBody incrementally decodes chunks out of buf (which starts
// at the first chunk-size line). On completion, data_length is computed
// as "last_chunk.start + 2 - header_length - headroom_length": here
// headroom_length is always 0 since Body holds only decoded bytes with
// no leading headroom, so data_length is simply len(p.Body) for S6's
// purposes; TargetSize is the full wire length consumed.
func (p *Parser) parseChunkedBody(buf []byte) Result {
	off := p.chunked.consumed
	for {
		if off >= len(buf) {
			return Result{Status: StatusIncomplete, TargetSize: -1}
		}
		lineEnd := indexCRLF(buf[off:])
		if lineEnd < 0 {
			return Result{Status: StatusIncomplete, TargetSize: -1}
		}

		sizeLine := string(buf[off : off+lineEnd])
		// Strip chunk extensions ("size;ext=val") per RFC 7230 §4.1.1.
		if semi := indexByte(sizeLine, ';'); semi >= 0 {
			sizeLine = sizeLine[:semi]
		}

		size, ok := parseHex(sizeLine)
		if !ok {
			return Result{Status: StatusSoftErr, TargetSize: -1}
		}

		chunkStart := off
		off += lineEnd + 2

		if size == 0 {
			// Zero-size terminator: consume its own trailing CRLF and
			// finish.
			if off+2 > len(buf) {
				return Result{Status: StatusIncomplete, TargetSize: -1}
			}
			off += 2
			p.chunked.lastChunkAt = chunkStart
			p.chunked.done = true
			p.phase = phaseDone
			total := p.headerLen + off
			return Result{Status: StatusOK, TargetSize: total, ParsedBytes: total}
		}

		if off+size+2 > len(buf) {
			return Result{Status: StatusIncomplete, TargetSize: -1}
		}

		p.Body = append(p.Body, buf[off:off+size]...)
		off += size + 2
		p.chunked.consumed = off
	}
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func parseHex(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		var d int
		switch {
		case c >= '0' && c <= '9':
			d = int(c - '0')
		case c >= 'a' && c <= 'f':
			d = int(c-'a') + 10
		case c >= 'A' && c <= 'F':
			d = int(c-'A') + 10
		default:
			return 0, false
		}
		n = n*16 + d
	}
	return n, true
}
