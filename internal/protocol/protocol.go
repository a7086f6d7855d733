package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Protocol constants
const (
	// Message sizes
	MessageSize     = 54 // 1 + 50 + 2 + 1 bytes
	ServiceNameSize = 50

	// Field offsets
	typeOffset   = 0
	nameOffset   = 1
	portOffset   = nameOffset + ServiceNameSize
	statusOffset = portOffset + 2
)

// MessageType identifies the kind of a PRS message
type MessageType uint8

// Message types
const (
	RequestPort MessageType = 0x01
	LookupPort  MessageType = 0x02
	KeepAlive   MessageType = 0x03
	ClosePort   MessageType = 0x04
	Response    MessageType = 0x05
	Stop        MessageType = 0x06
)

// Status is the outcome carried by a response
type Status uint8

// Status codes
const (
	StatusSuccess         Status = 0x00
	StatusServiceNotFound Status = 0x01
	StatusAllPortsBusy    Status = 0x02
	StatusUndefinedError  Status = 0x03
)

// ErrMalformedMessage is returned when a datagram does not decode into a valid message.
var ErrMalformedMessage = errors.New("malformed message")

// Message is one PRS request or response.
// Layout: [Type:1][ServiceName:50][Port:2][Status:1]
type Message struct {
	Type        MessageType
	ServiceName string
	Port        uint16
	Status      Status // Only meaningful on responses
}

// NewRequest creates a request message. The status field carries the ignored sentinel.
func NewRequest(msgType MessageType, serviceName string, port uint16) *Message {
	return &Message{
		Type:        msgType,
		ServiceName: serviceName,
		Port:        port,
		Status:      StatusSuccess,
	}
}

// NewResponse creates a RESPONSE message
func NewResponse(serviceName string, port uint16, status Status) *Message {
	return &Message{
		Type:        Response,
		ServiceName: serviceName,
		Port:        port,
		Status:      status,
	}
}

// Encode serializes a message into its fixed wire layout.
// Service names longer than ServiceNameSize bytes are truncated.
func Encode(m *Message) []byte {
	buf := make([]byte, MessageSize)

	buf[typeOffset] = byte(m.Type)
	copy(buf[nameOffset:nameOffset+ServiceNameSize], m.ServiceName)
	binary.BigEndian.PutUint16(buf[portOffset:portOffset+2], m.Port)
	buf[statusOffset] = byte(m.Status)

	return buf
}

// Decode parses a datagram into a message
func Decode(data []byte) (*Message, error) {
	if len(data) != MessageSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedMessage, MessageSize, len(data))
	}

	msg := &Message{
		Type:        MessageType(data[typeOffset]),
		ServiceName: ExtractString(data[nameOffset : nameOffset+ServiceNameSize]),
		Port:        binary.BigEndian.Uint16(data[portOffset : portOffset+2]),
		Status:      Status(data[statusOffset]),
	}

	if !IsValidMessageType(msg.Type) {
		return nil, fmt.Errorf("%w: invalid message type: 0x%02x", ErrMalformedMessage, uint8(msg.Type))
	}

	if !IsValidStatus(msg.Status) {
		return nil, fmt.Errorf("%w: invalid status: 0x%02x", ErrMalformedMessage, uint8(msg.Status))
	}

	return msg, nil
}

// IsValidMessageType checks if the message type is one of the known kinds
func IsValidMessageType(t MessageType) bool {
	return t >= RequestPort && t <= Stop
}

// IsValidStatus checks if the status is one of the known codes
func IsValidStatus(s Status) bool {
	return s <= StatusUndefinedError
}

// ExtractString extracts a null-terminated string from a fixed-size byte array
func ExtractString(buf []byte) string {
	nullPos := len(buf)
	for i, b := range buf {
		if b == 0 {
			nullPos = i
			break
		}
	}
	return string(buf[:nullPos])
}

// String returns the wire name of the message type
func (t MessageType) String() string {
	switch t {
	case RequestPort:
		return "REQUEST_PORT"
	case LookupPort:
		return "LOOKUP_PORT"
	case KeepAlive:
		return "KEEP_ALIVE"
	case ClosePort:
		return "CLOSE_PORT"
	case Response:
		return "RESPONSE"
	case Stop:
		return "STOP"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", uint8(t))
	}
}

// String returns the wire name of the status
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusServiceNotFound:
		return "SERVICE_NOT_FOUND"
	case StatusAllPortsBusy:
		return "ALL_PORTS_BUSY"
	case StatusUndefinedError:
		return "UNDEFINED_ERROR"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", uint8(s))
	}
}

// String renders the message as {TYPE, name, port, STATUS}
func (m *Message) String() string {
	return fmt.Sprintf("{%s, %s, %d, %s}", m.Type, m.ServiceName, m.Port, m.Status)
}
