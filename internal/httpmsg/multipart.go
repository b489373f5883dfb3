package httpmsg

import (
	"bytes"
	"strings"

	"github.com/rrrd/rrr/internal/rrrerr"
)

// BoundaryFromContentType extracts the "boundary" subvalue of a
// multipart content-type header, e.g. "multipart/form-data;
// boundary=XYZ".
func BoundaryFromContentType(ct *HeaderField) (string, bool) {
	if ct == nil {
		return "", false
	}
	b, ok := ct.Subvalues["boundary"]
	return b, ok && b != ""
}

// ParseMultipartBody splits body on "--boundary" delimiters and parses
// each sub-part's headers via a nested Parser re-entered with
// ParseMultipart, which skips first-line parsing and enters directly at
// the header phase. Each
// sub-part's content-disposition "name" becomes the returned Field's
// name; the sub-part's body becomes its value. Recursion is bounded by
// opts.MaxParts.
func ParseMultipartBody(body []byte, boundary string, opts Options) ([]Field, error) {
	delim := []byte("--" + boundary)

	segments, err := splitOnBoundary(body, delim)
	if err != nil {
		return nil, err
	}

	if len(segments) > opts.maxParts() {
		return nil, rrrerr.New(rrrerr.Soft, "httpmsg: multipart part count exceeds limit")
	}

	var fields []Field
	for _, seg := range segments {
		field, ok, err := parseMultipartSegment(seg, opts)
		if err != nil {
			return nil, err
		}
		if ok {
			fields = append(fields, field)
		}
	}
	return fields, nil
}

// splitOnBoundary returns the byte range of every part body between
// "--boundary\r\n" and the next "--boundary" or the terminating
// "--boundary--".
func splitOnBoundary(body []byte, delim []byte) ([][]byte, error) {
	var segments [][]byte

	idx := bytes.Index(body, delim)
	if idx < 0 {
		return nil, rrrerr.New(rrrerr.Soft, "httpmsg: multipart boundary not found")
	}

	rest := body[idx+len(delim):]
	for {
		if bytes.HasPrefix(rest, []byte("--")) {
			// Terminating boundary.
			return segments, nil
		}
		if !bytes.HasPrefix(rest, []byte("\r\n")) {
			return nil, rrrerr.New(rrrerr.Soft, "httpmsg: malformed multipart boundary line")
		}
		rest = rest[2:]

		next := bytes.Index(rest, delim)
		if next < 0 {
			return nil, rrrerr.New(rrrerr.Incomplete, "httpmsg: multipart terminating boundary missing")
		}

		// Strip the CRLF immediately preceding the next boundary.
		segEnd := next
		if segEnd >= 2 && rest[segEnd-2] == '\r' && rest[segEnd-1] == '\n' {
			segEnd -= 2
		}
		segments = append(segments, rest[:segEnd])
		rest = rest[next+len(delim):]
	}
}

func parseMultipartSegment(seg []byte, opts Options) (Field, bool, error) {
	sub := NewParser(ParseMultipart, opts)
	res := sub.Parse(seg)
	if res.Status == StatusIncomplete {
		// Headers never terminated within this segment; malformed part.
		return Field{}, false, rrrerr.New(rrrerr.Soft, "httpmsg: multipart sub-part header incomplete")
	}
	if res.Status != StatusOK {
		return Field{}, false, rrrerr.New(rrrerr.Soft, "httpmsg: multipart sub-part header invalid")
	}

	// classifyBody on a headerless/bodyless ParseMultipart part leaves
	// BodyMode at its zero value (BodyNone) unless Content-Length/
	// Transfer-Encoding was present; the remaining bytes after the header
	// are the sub-part's literal body regardless.
	value := seg[sub.headerLen:]

	cd := sub.Headers.Get("content-disposition")
	if cd == nil {
		return Field{}, false, nil
	}
	name, ok := cd.Subvalues["name"]
	if !ok {
		return Field{}, false, nil
	}
	name = strings.Trim(name, `"`)

	return Field{Name: name, Value: value}, true, nil
}
