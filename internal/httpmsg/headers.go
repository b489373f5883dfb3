package httpmsg

import "strings"

// HeaderField is one parsed "name: value[; subname=subvalue, ...]"
// header.
type HeaderField struct {
	Name      string
	Value     string
	Subvalues map[string]string
}

// Headers is the ordered collection of a message's header fields. Order
// is preserved so ALLOW_MULTIPLE fields can be walked in wire order.
type Headers struct {
	fields []HeaderField
}

// Get returns the first field with the given name (case-insensitive),
// or nil.
func (h *Headers) Get(name string) *HeaderField {
	name = strings.ToLower(name)
	for i := range h.fields {
		if strings.ToLower(h.fields[i].Name) == name {
			return &h.fields[i]
		}
	}
	return nil
}

// GetAll returns every field with the given name, in wire order.
func (h *Headers) GetAll(name string) []HeaderField {
	name = strings.ToLower(name)
	var out []HeaderField
	for _, f := range h.fields {
		if strings.ToLower(f.Name) == name {
			out = append(out, f)
		}
	}
	return out
}

// definition describes how a particular header name may legally repeat
// and whether its subvalues may be bare name=value pairs, mirroring
// "multi-value only allowed for header definitions marked
// ALLOW_MULTIPLE, no name=value subvalues allowed for NO_PAIRS".
type definition struct {
	AllowMultiple bool
	NoPairs       bool
}

var knownDefinitions = map[string]definition{
	"content-type":      {NoPairs: false, AllowMultiple: false},
	"content-length":    {NoPairs: true, AllowMultiple: false},
	"transfer-encoding":  {NoPairs: true, AllowMultiple: true},
	"accept":            {NoPairs: false, AllowMultiple: true},
	"cookie":            {NoPairs: false, AllowMultiple: true},
	"set-cookie":        {NoPairs: false, AllowMultiple: true},
	"content-disposition": {NoPairs: false, AllowMultiple: false},
}

func definitionFor(name string) definition {
	if d, ok := knownDefinitions[strings.ToLower(name)]; ok {
		return d
	}
	return definition{NoPairs: false, AllowMultiple: true}
}

// parseHeaders reads CRLF-delimited header lines from buf until the
// blank line terminator, returning the number of bytes consumed
// (including the terminating CRLFCRLF).
func (p *Parser) parseHeaders(buf []byte) (int, Status) {
	total := 0
	for {
		idx := indexCRLF(buf[total:])
		if idx < 0 {
			if len(buf)-total > 16384 {
				return 0, StatusHardErr
			}
			return 0, StatusIncomplete
		}
		if idx == 0 {
			// Blank line: end of header section.
			total += 2
			return total, StatusOK
		}

		line := string(buf[total : total+idx])
		total += idx + 2

		field, status := parseHeaderLine(line, p.Opts.StrictHeaderSpacing)
		if status != StatusOK {
			return 0, status
		}

		def := definitionFor(field.Name)
		if def.NoPairs && len(field.Subvalues) > 0 {
			return 0, StatusSoftErr
		}
		if !def.AllowMultiple && p.Headers.Get(field.Name) != nil {
			return 0, StatusSoftErr
		}

		p.Headers.fields = append(p.Headers.fields, field)
	}
}

// parseHeaderLine splits "name: value; sub=val, sub2=val2" into a
// HeaderField. A bad-client header missing the space after a comma
// between subvalues is tolerated unless strict is set.
func parseHeaderLine(line string, strict bool) (HeaderField, Status) {
	colon := strings.IndexByte(line, ':')
	if colon < 0 {
		return HeaderField{}, StatusSoftErr
	}
	name := strings.TrimSpace(line[:colon])
	rest := strings.TrimSpace(line[colon+1:])
	if name == "" {
		return HeaderField{}, StatusSoftErr
	}

	parts := strings.Split(rest, ";")
	value := strings.TrimSpace(parts[0])

	field := HeaderField{Name: name, Value: value}
	for _, sub := range parts[1:] {
		for i, kv := range strings.Split(sub, ",") {
			if strict && i > 0 && !strings.HasPrefix(kv, " ") {
				return HeaderField{}, StatusSoftErr
			}
			kv = strings.TrimSpace(kv)
			if kv == "" {
				if strict {
					return HeaderField{}, StatusSoftErr
				}
				continue
			}
			if field.Subvalues == nil {
				field.Subvalues = make(map[string]string)
			}
			if eq := strings.IndexByte(kv, '='); eq >= 0 {
				k := strings.TrimSpace(kv[:eq])
				v := strings.Trim(strings.TrimSpace(kv[eq+1:]), `"`)
				field.Subvalues[k] = v
			} else {
				field.Subvalues[kv] = ""
			}
		}
	}
	return field, StatusOK
}
