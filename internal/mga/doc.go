// Package mga delivers assistance data to a receiver over a half-duplex,
// message oriented link.
//
// An Engine owns at most one active transfer at a time: a catalog transfer
// (online/offline assistance frames under None, Simple or Smart flow
// control), a flash transfer (bulk MGA-FLASH blocks) or a legacy AID-ALP
// transfer with its receiver-driven file server. The engine never starts
// goroutines. The host drives it from two places: OnInbound for every
// complete frame read from the link and OnTimeoutTick on a periodic timer.
// Writes and progress reports are made synchronously with the engine lock
// held, so Host implementations must not call back into the engine.
package mga
