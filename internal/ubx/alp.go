package ubx

import "encoding/binary"

// Legacy (AID-ALP) ack byte values.
const (
	AlpNak = 0x00
	AlpAck = 0x01
)

// AlpData wraps one raw block in an AID-ALP frame.
func AlpData(block []byte) []byte {
	return Encode(ClassAID, IDAidALP, block)
}

// AlpStop is the one-byte AID-ALP "end of data" frame.
func AlpStop() []byte {
	return Encode(ClassAID, IDAidALP, []byte{0x00})
}

// ParseAlpAck recognises the receiver's one-byte AID-ALP acknowledgement.
func ParseAlpAck(frame []byte) (ok bool, matched bool) {
	if len(frame) < Overhead || Class(frame) != ClassAID || ID(frame) != IDAidALP {
		return false, false
	}
	p := Payload(frame)
	if len(p) != 1 || (p[0] != AlpAck && p[0] != AlpNak) {
		return false, false
	}
	return p[0] == AlpAck, true
}

// EncodeAlpAck builds the receiver side acknowledgement.
func EncodeAlpAck(ok bool) []byte {
	b := byte(AlpNak)
	if ok {
		b = AlpAck
	}
	return Encode(ClassAID, IDAidALP, []byte{b})
}

// AlpSrvHeaderLen is the minimum request header:
// idSize, type, offset(2), size(2), fileId(2), dataSize(2).
const AlpSrvHeaderLen = 10

// AlpSrvUpdate in the type byte marks an update (write) request.
const AlpSrvUpdate = 0xFF

// AlpSrvRequest is a receiver-initiated read or update of the host blob.
// Offset and Size are in bytes.
type AlpSrvRequest struct {
	Header []byte
	Type   byte
	Offset uint16
	Size   uint16
	FileID uint16
	Data   []byte
}

// IsUpdate reports whether the request writes into the host blob.
func (r AlpSrvRequest) IsUpdate() bool { return r.Type == AlpSrvUpdate }

// ParseAlpSrvRequest recognises an AID-ALPSRV request.
func ParseAlpSrvRequest(frame []byte) (AlpSrvRequest, bool) {
	if len(frame) < Overhead || Class(frame) != ClassAID || ID(frame) != IDAidALPSRV {
		return AlpSrvRequest{}, false
	}
	p := Payload(frame)
	if len(p) < AlpSrvHeaderLen {
		return AlpSrvRequest{}, false
	}
	idSize := int(p[0])
	if idSize < AlpSrvHeaderLen || idSize > len(p) {
		return AlpSrvRequest{}, false
	}
	r := AlpSrvRequest{
		Header: p[:idSize],
		Type:   p[1],
		Offset: binary.LittleEndian.Uint16(p[2:4]),
		Size:   binary.LittleEndian.Uint16(p[4:6]),
		FileID: binary.LittleEndian.Uint16(p[6:8]),
	}
	if r.IsUpdate() {
		data := p[idSize:]
		if len(data) > int(r.Size) {
			data = data[:r.Size]
		}
		r.Data = data
	}
	return r, true
}

// EncodeAlpSrvRequest builds a request as the receiver would send it.
func EncodeAlpSrvRequest(typ byte, offset, size, fileID uint16, data []byte) []byte {
	p := make([]byte, AlpSrvHeaderLen, AlpSrvHeaderLen+len(data))
	p[0] = AlpSrvHeaderLen
	p[1] = typ
	binary.LittleEndian.PutUint16(p[2:], offset)
	binary.LittleEndian.PutUint16(p[4:], size)
	binary.LittleEndian.PutUint16(p[6:], fileID)
	p = append(p, data...)
	return Encode(ClassAID, IDAidALPSRV, p)
}

// AlpSrvReply echoes the request header with dataSize filled in, followed by
// the requested bytes.
func AlpSrvReply(req AlpSrvRequest, data []byte) []byte {
	p := make([]byte, len(req.Header), len(req.Header)+len(data))
	copy(p, req.Header)
	binary.LittleEndian.PutUint16(p[8:10], uint16(len(data)))
	p = append(p, data...)
	return Encode(ClassAID, IDAidALPSRV, p)
}

// AlpSrvReplyData returns the data part of an AID-ALPSRV reply.
func AlpSrvReplyData(frame []byte) ([]byte, bool) {
	if len(frame) < Overhead || Class(frame) != ClassAID || ID(frame) != IDAidALPSRV {
		return nil, false
	}
	p := Payload(frame)
	if len(p) < AlpSrvHeaderLen || int(p[0]) > len(p) {
		return nil, false
	}
	n := int(binary.LittleEndian.Uint16(p[8:10]))
	data := p[p[0]:]
	if n > len(data) {
		return nil, false
	}
	return data[:n], true
}
