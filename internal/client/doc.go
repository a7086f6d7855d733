// Package client is a small UDP client for the PRS protocol.
package client
