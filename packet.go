package mssql

import (
	"encoding/binary"
)

type packetType uint8

// packet types
// https://msdn.microsoft.com/en-us/library/dd304214.aspx
const (
	packSQLBatch    packetType = 1
	packRPCRequest  packetType = 3
	packReply       packetType = 4
	packAttention   packetType = 6
	packBulkLoadBCP packetType = 7
	packTransMgrReq packetType = 14
	packNormal      packetType = 15
	packLogin7      packetType = 16
	packSSPIMessage packetType = 17
	packPrelogin    packetType = 18
)

// packet header status bits
const (
	statusEndOfMessage    = 1
	statusResetConnection = 0x8
)

// 8-byte packet header
// http://msdn.microsoft.com/en-us/library/dd340948.aspx
type header struct {
	PacketType packetType
	Status     uint8
	Size       uint16
	Spid       uint16
	PacketNo   uint8
	Pad        uint8
}

const headerSize = 8

func isValidPacketType(t packetType) bool {
	switch t {
	case packSQLBatch, packRPCRequest, packReply, packAttention,
		packBulkLoadBCP, packTransMgrReq, packNormal, packLogin7,
		packSSPIMessage, packPrelogin:
		return true
	}
	return false
}

// readHeader parses an 8-byte packet header. The declared packet type
// must be one of the recognized values.
func readHeader(b []byte) (header, error) {
	if len(b) < headerSize {
		return header{}, streamErrorf("packet header too short: %d bytes", len(b))
	}
	h := header{
		PacketType: packetType(b[0]),
		Status:     b[1],
		Size:       binary.BigEndian.Uint16(b[2:]),
		Spid:       binary.BigEndian.Uint16(b[4:]),
		PacketNo:   b[6],
		Pad:        b[7],
	}
	if !isValidPacketType(h.PacketType) {
		return h, streamErrorf("invalid packet type %d", b[0])
	}
	return h, nil
}

func (h header) encode(b []byte) {
	b[0] = byte(h.PacketType)
	b[1] = h.Status
	binary.BigEndian.PutUint16(b[2:], h.Size)
	binary.BigEndian.PutUint16(b[4:], h.Spid)
	b[6] = h.PacketNo
	b[7] = h.Pad
}

// writePackets splits payload into packets of at most maxPacketSize bytes
// (header included) and returns the framed stream as a single buffer. The
// whole payload is copied once up front and the headers are then stamped
// in a single backward pass, moving each chunk into its final position;
// going from the last chunk to the first means a chunk is never moved
// over bytes that still have to be relocated.
//
// The END_OF_MESSAGE bit is set only on the last packet. An empty payload
// still produces exactly one header-only final packet. The packet
// sequence byte is the constant 1; clients do not track sequence numbers.
func writePackets(payload []byte, maxPacketSize int, ty packetType) []byte {
	contentsSize := maxPacketSize - headerSize
	packetCount := len(payload) / contentsSize
	lastContentsSize := len(payload) % contentsSize
	if lastContentsSize > 0 || packetCount == 0 {
		packetCount++
	}

	buf := make([]byte, len(payload)+headerSize*packetCount)
	copy(buf[headerSize:], payload)

	for i := packetCount - 1; i >= 0; i-- {
		isLast := i == packetCount-1
		size := contentsSize
		if isLast {
			if lastContentsSize > 0 || len(payload) == 0 {
				size = lastContentsSize
			}
		}

		headerStart := i * maxPacketSize
		targetStart := headerStart + headerSize
		currentStart := headerSize + i*contentsSize
		if currentStart != targetStart {
			copy(buf[targetStart:targetStart+size], buf[currentStart:currentStart+size])
		}

		status := uint8(0)
		if isLast {
			status = statusEndOfMessage
		}
		header{
			PacketType: ty,
			Status:     status,
			Size:       uint16(headerSize + size),
			PacketNo:   1,
		}.encode(buf[headerStart:targetStart])
	}

	return buf
}
