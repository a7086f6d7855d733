// Package registry holds the port reservation table and the request state machine.
package registry
