// Package server implements the UDP transport loop for the port reservation
// registry and the optional HTTP monitoring API.
// Each datagram is decoded, handed to the registry and answered before the next
// one is read.
package server
