// Package link connects the transfer engine to a receiver on a serial port.
//
// Conn is the write primitive handed to the engine; Runner drives the
// engine from a reader goroutine (complete inbound frames) and a ticker
// goroutine (timeouts) until the transfer ends.
package link
