// Package ubx implements the u-blox binary framing used to move assistance
// data to a GNSS receiver.
//
// Frame layout:
//
//	0xB5 0x62 <class> <id> <len lo> <len hi> <payload...> <ckA> <ckB>
//
// The checksum is the 8-bit Fletcher sum over class..end of payload. The
// package only knows the messages the assistance engine needs: the MGA and
// AID families, the generic ACK class, and the flash/legacy side channels.
package ubx
