package mqtt

import "github.com/rrrd/rrr/internal/rrrerr"

// PropertyID is an MQTT v5 property identifier.
type PropertyID uint32

const (
	PropPayloadFormatIndicator      PropertyID = 0x01
	PropMessageExpiryInterval       PropertyID = 0x02
	PropContentType                 PropertyID = 0x03
	PropResponseTopic               PropertyID = 0x08
	PropCorrelationData              PropertyID = 0x09
	PropSubscriptionIdentifier       PropertyID = 0x0B
	PropSessionExpiryInterval        PropertyID = 0x11
	PropReceiveMaximum               PropertyID = 0x21
	PropMaximumQoS                   PropertyID = 0x24
	PropRequestResponseInformation   PropertyID = 0x19
	PropUserProperty                 PropertyID = 0x26
)

// allowsDuplicates lists the only two property identifiers the spec
// permits to appear more than once in the same property set.
func allowsDuplicates(id PropertyID) bool {
	return id == PropUserProperty || id == PropSubscriptionIdentifier
}

// Property is one decoded v5 property: a scalar value (ignored for
// UserProperty, whose two strings live in UserKey/UserValue) or a
// key/value pair.
type Property struct {
	ID         PropertyID
	Value      uint64
	Bytes      []byte
	UserKey    string
	UserValue  string
}

// Properties is a parsed property set, grouped by identifier to support
// identifiers that legally repeat.
type Properties struct {
	byID map[PropertyID][]Property
}

// Get returns the single value for an identifier that may not repeat,
// or ok=false if absent.
func (p Properties) Get(id PropertyID) (Property, bool) {
	vs, ok := p.byID[id]
	if !ok || len(vs) == 0 {
		return Property{}, false
	}
	return vs[0], true
}

// All returns every occurrence of id, in wire order.
func (p Properties) All(id PropertyID) []Property {
	return p.byID[id]
}

// ParseProperties walks a decoded list of properties (already split out
// of the packet's variable header by the caller) enforcing: no
// duplicates except USER_PROPERTY/SUBSCRIPTION_IDENTIFIER, and the
// numeric range constraints each identifier carries. On violation it returns
// the reason code the packet handler should close or NACK with.
func ParseProperties(items []Property) (Properties, ReasonCode, error) {
	out := Properties{byID: make(map[PropertyID][]Property)}

	for _, item := range items {
		if existing := out.byID[item.ID]; len(existing) > 0 && !allowsDuplicates(item.ID) {
			return Properties{}, ReasonProtocolError, rrrerr.Newf(rrrerr.Soft,
				"mqtt: duplicate property 0x%02x", uint32(item.ID))
		}

		if code, err := validateRange(item); err != nil {
			return Properties{}, code, err
		}

		out.byID[item.ID] = append(out.byID[item.ID], item)
	}

	return out, ReasonSuccess, nil
}

func validateRange(p Property) (ReasonCode, error) {
	switch p.ID {
	case PropReceiveMaximum:
		if p.Value == 0 {
			return ReasonProtocolError, rrrerr.New(rrrerr.Soft, "mqtt: receive_maximum must not be 0")
		}
	case PropRequestResponseInformation:
		if p.Value != 0 && p.Value != 1 {
			return ReasonMalformedPacket, rrrerr.New(rrrerr.Soft, "mqtt: request_response_information must be 0 or 1")
		}
	case PropMaximumQoS:
		if p.Value > 2 {
			return ReasonMalformedPacket, rrrerr.New(rrrerr.Soft, "mqtt: maximum_qos must be 0, 1, or 2")
		}
	}
	return ReasonSuccess, nil
}
