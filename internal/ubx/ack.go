package ubx

import "encoding/binary"

// KeyLen is the width of the echoed payload prefix in an MGA-ACK.
const KeyLen = 4

// Key correlates an MGA-ACK with the frame it answers: the message id
// followed by the first KeyLen payload bytes (zero padded).
type Key [1 + KeyLen]byte

// KeyOf derives the correlation key of a complete frame.
func KeyOf(frame []byte) Key {
	var k Key
	k[0] = ID(frame)
	copy(k[1:], Payload(frame))
	return k
}

// AckShape says which acknowledgement format a frame used.
type AckShape uint8

const (
	// AckGeneric is ACK-ACK / ACK-NAK carrying the class/id of the last command.
	AckGeneric AckShape = iota + 1
	// AckMGA is MGA-ACK carrying an info code and the echoed key.
	AckMGA
)

// Ack is a parsed acknowledgement.
type Ack struct {
	Shape AckShape
	OK    bool

	// Generic.
	Class byte
	ID    byte

	// MGA.
	InfoCode byte
	Key      Key
}

// MGA-ACK type byte.
const (
	mgaAckNak = 0x00
	mgaAckAck = 0x01
)

// ParseAck recognises ACK-ACK, ACK-NAK and MGA-ACK frames. The frame must
// already be checksum-valid.
func ParseAck(frame []byte) (Ack, bool) {
	if len(frame) < Overhead {
		return Ack{}, false
	}
	p := Payload(frame)
	switch {
	case Class(frame) == ClassACK && (ID(frame) == IDAckAck || ID(frame) == IDAckNak):
		if len(p) < 2 {
			return Ack{}, false
		}
		return Ack{Shape: AckGeneric, OK: ID(frame) == IDAckAck, Class: p[0], ID: p[1]}, true
	case Class(frame) == ClassMGA && ID(frame) == IDMgaAck:
		if len(p) < 4+KeyLen {
			return Ack{}, false
		}
		if p[0] != mgaAckAck && p[0] != mgaAckNak {
			return Ack{}, false
		}
		a := Ack{Shape: AckMGA, OK: p[0] == mgaAckAck, InfoCode: p[2]}
		a.Key[0] = p[3]
		copy(a.Key[1:], p[4:4+KeyLen])
		return a, true
	default:
		return Ack{}, false
	}
}

// GenericAck builds an ACK-ACK (ok) or ACK-NAK frame for class/id.
func GenericAck(ok bool, class, id byte) []byte {
	aid := byte(IDAckNak)
	if ok {
		aid = IDAckAck
	}
	return Encode(ClassACK, aid, []byte{class, id})
}

// MgaAck builds an MGA-ACK frame answering the frame with key k.
func MgaAck(ok bool, infoCode byte, k Key) []byte {
	p := make([]byte, 4+KeyLen)
	if ok {
		p[0] = mgaAckAck
	}
	p[2] = infoCode
	p[3] = k[0]
	copy(p[4:], k[1:])
	return Encode(ClassMGA, IDMgaAck, p)
}

// MGA-FLASH message types.
const (
	flashTypeData = 0x01
	flashTypeStop = 0x02
	flashTypeAck  = 0x03
)

// Flash ACK codes.
const (
	FlashAckOK    = 0x00
	FlashAckRetry = 0x01
	FlashAckAbort = 0x02
)

// FlashDataHeaderLen is the type/version/sequence/size header in front of
// each flash block.
const FlashDataHeaderLen = 6

// FlashData builds an MGA-FLASH-DATA frame for one block. The last header
// field is the byte length of this block, not a count of blocks; the
// receiver reads exactly that many bytes after the header.
func FlashData(seq uint16, block []byte) []byte {
	p := make([]byte, FlashDataHeaderLen, FlashDataHeaderLen+len(block))
	p[0] = flashTypeData
	binary.LittleEndian.PutUint16(p[2:], seq)
	binary.LittleEndian.PutUint16(p[4:], uint16(len(block)))
	p = append(p, block...)
	return Encode(ClassMGA, IDMgaFlash, p)
}

// FlashStop builds the MGA-FLASH-STOP frame that closes a flash session.
func FlashStop() []byte {
	return Encode(ClassMGA, IDMgaFlash, []byte{flashTypeStop, 0x00})
}

// FlashAck is the receiver's answer to a flash block or stop frame.
type FlashAck struct {
	Code     byte
	Sequence uint16
}

// ParseFlashAck recognises an MGA-FLASH-ACK frame.
func ParseFlashAck(frame []byte) (FlashAck, bool) {
	if len(frame) < Overhead || Class(frame) != ClassMGA || ID(frame) != IDMgaFlash {
		return FlashAck{}, false
	}
	p := Payload(frame)
	if len(p) < 6 || p[0] != flashTypeAck {
		return FlashAck{}, false
	}
	return FlashAck{Code: p[2], Sequence: binary.LittleEndian.Uint16(p[4:6])}, true
}

// EncodeFlashAck builds an MGA-FLASH-ACK frame.
func EncodeFlashAck(code byte, seq uint16) []byte {
	p := make([]byte, 6)
	p[0] = flashTypeAck
	p[2] = code
	binary.LittleEndian.PutUint16(p[4:], seq)
	return Encode(ClassMGA, IDMgaFlash, p)
}
