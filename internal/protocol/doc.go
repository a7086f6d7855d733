// Package protocol implements the PRS wire message codec.
// It handles the fixed 54-byte datagram layout, validation of message types
// and status codes, and the debug rendering used in logs and tests.
package protocol
