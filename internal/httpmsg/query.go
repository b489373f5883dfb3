package httpmsg

import "strings"

// Field is one decoded name/value pair extracted from a query string, a
// urlencoded body, or a multipart sub-part.
type Field struct {
	Name  string
	Value []byte
}

// ParseQueryString decodes "name=value&name2=value2&flag" pairs, used
// both for a request URI's query component and for
// application/x-www-form-urlencoded bodies.
func ParseQueryString(s string) []Field {
	var fields []Field
	for _, pair := range strings.Split(s, "&") {
		if pair == "" {
			continue
		}
		var name, value string
		if eq := strings.IndexByte(pair, '='); eq >= 0 {
			name, value = pair[:eq], pair[eq+1:]
		} else {
			name = pair
		}
		fields = append(fields, Field{
			Name:  percentDecode(name),
			Value: []byte(percentDecode(value)),
		})
	}
	return fields
}

// percentDecode reverses "%HH" escaping and turns '+' into a space, per
// application/x-www-form-urlencoded's encoding rules.
func percentDecode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '+':
			b.WriteByte(' ')
		case '%':
			if i+2 < len(s) {
				if hi, ok := hexDigit(s[i+1]); ok {
					if lo, ok := hexDigit(s[i+2]); ok {
						b.WriteByte(byte(hi<<4 | lo))
						i += 2
						continue
					}
				}
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func hexDigit(c byte) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10, true
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10, true
	default:
		return 0, false
	}
}

// QueryFromURI extracts and decodes the query component of the parser's
// request URI, or nil if there is none.
func (p *Parser) QueryFromURI() []Field {
	if idx := strings.IndexByte(p.URI, '?'); idx >= 0 {
		return ParseQueryString(p.URI[idx+1:])
	}
	return nil
}
