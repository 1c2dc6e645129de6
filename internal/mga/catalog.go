package mga

import (
	"bytes"

	"assistnow/internal/ubx"
)

// BuildCatalog turns a blob of frames into the ordered list of blocks to
// transfer: one per allow-listed, checksum-valid frame, in encounter order.
// The blocks share one private copy of buf, so the caller keeps ownership
// of buf. With requireIniTime the first block must be an aiding-init time
// message.
func BuildCatalog(buf []byte, requireIniTime bool) ([]*MessageBlock, error) {
	count, err := ubx.CountFramesOfInterest(buf)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrNoDataToSend
	}

	owned := bytes.Clone(buf)
	blocks := make([]*MessageBlock, 0, count)
	err = ubx.Walk(owned, func(frame []byte, valid bool) {
		if !valid {
			return
		}
		if _, ok := ubx.KindOf(frame); !ok {
			return
		}
		blocks = append(blocks, newFrameBlock(frame, len(blocks)))
	})
	if err != nil {
		return nil, err
	}

	if requireIniTime && !ubx.IsIniTime(blocks[0].Payload) {
		return nil, ErrNoMgaIniTime
	}
	return blocks, nil
}

func catalogBytes(blocks []*MessageBlock) int {
	n := 0
	for _, b := range blocks {
		n += len(b.Payload)
	}
	return n
}

func renumber(blocks []*MessageBlock) {
	for i, b := range blocks {
		b.Seq = i
	}
}
