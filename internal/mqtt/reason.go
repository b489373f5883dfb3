package mqtt

// ReasonCode is an MQTT v5 reason code; 3.1.1 handlers collapse these
// down to success/non-zero as needed.
type ReasonCode uint8

const (
	ReasonSuccess                 ReasonCode = 0x00
	ReasonNoMatchingSubscribers   ReasonCode = 0x10
	ReasonUnspecifiedError        ReasonCode = 0x80
	ReasonMalformedPacket         ReasonCode = 0x81
	ReasonProtocolError           ReasonCode = 0x82
	ReasonPacketIDNotFound        ReasonCode = 0x92
	ReasonPacketIDInUse           ReasonCode = 0x91
	ReasonQuotaExceeded           ReasonCode = 0x97
	ReasonKeepAliveTimeout        ReasonCode = 0x8D
	ReasonNotAuthorized           ReasonCode = 0x87
	ReasonUnsupportedVersion      ReasonCode = 0x84
)
