package mssql

import (
	"encoding/binary"
	"errors"
	"io"
)

// tdsBuffer reads and writes the packet stream for one connection. Reads
// continue transparently across the non-final packets of a packet
// sequence; writes are split automatically once the negotiated packet
// size is reached.
type tdsBuffer struct {
	transport io.ReadWriteCloser

	packetSize int

	// Write fields.
	wbuf        []byte
	wpos        int
	wPacketSeq  byte
	wPacketType packetType

	// Read fields.
	rbuf        []byte
	rpos        int
	rsize       int
	final       bool
	rPacketType packetType
}

func newTdsBuffer(bufsize uint16, transport io.ReadWriteCloser) *tdsBuffer {
	return &tdsBuffer{
		packetSize: int(bufsize),
		wbuf:       make([]byte, 1<<16),
		rbuf:       make([]byte, 1<<16),
		rpos:       headerSize,
		transport:  transport,
	}
}

// ResizeBuffer applies a renegotiated packet size. The backing arrays
// already hold the maximum the protocol allows.
func (rw *tdsBuffer) ResizeBuffer(packetSize int) {
	rw.packetSize = packetSize
}

func (w *tdsBuffer) PackageSize() int {
	return w.packetSize
}

func (w *tdsBuffer) flush() (err error) {
	// Packet header.
	w.wbuf[0] = byte(w.wPacketType)
	binary.BigEndian.PutUint16(w.wbuf[2:], uint16(w.wpos))
	binary.BigEndian.PutUint16(w.wbuf[4:], 0)
	w.wbuf[6] = w.wPacketSeq
	w.wbuf[7] = 0

	if _, err = w.transport.Write(w.wbuf[:w.wpos]); err != nil {
		return err
	}

	w.wpos = headerSize
	w.wPacketSeq++
	// The reset-session bit is only sent on the first packet.
	w.wbuf[1] &^= statusResetConnection
	return nil
}

func (w *tdsBuffer) Write(p []byte) (total int, err error) {
	for {
		copied := copy(w.wbuf[w.wpos:w.packetSize], p)
		w.wpos += copied
		total += copied
		if copied == len(p) {
			return
		}
		if err = w.flush(); err != nil {
			return
		}
		p = p[copied:]
	}
}

func (w *tdsBuffer) WriteByte(b byte) error {
	if w.wpos == w.packetSize {
		if err := w.flush(); err != nil {
			return err
		}
	}
	w.wbuf[w.wpos] = b
	w.wpos++
	return nil
}

func (w *tdsBuffer) BeginPacket(packetType packetType, resetSession bool) {
	status := byte(0)
	if resetSession {
		switch packetType {
		// Reset session can only be set on the following packet types.
		case packSQLBatch, packRPCRequest, packTransMgrReq:
			status = statusResetConnection
		}
	}
	w.wbuf[1] = status // packet is incomplete
	w.wpos = headerSize
	w.wPacketSeq = 1
	w.wPacketType = packetType
}

func (w *tdsBuffer) FinishPacket() error {
	w.wbuf[1] |= statusEndOfMessage
	return w.flush()
}

var errInvalidPacketSizeTooLong = errors.New("invalid packet size, it is longer than buffer size")
var errInvalidPacketSizeTooShort = errors.New("invalid packet size, it is shorter than header size")

func (r *tdsBuffer) readNextPacket() error {
	buf := r.rbuf[:headerSize]
	_, err := io.ReadFull(r.transport, buf)
	if err != nil {
		return err
	}
	h := header{
		PacketType: packetType(buf[0]),
		Status:     buf[1],
		Size:       binary.BigEndian.Uint16(buf[2:4]),
		Spid:       binary.BigEndian.Uint16(buf[4:6]),
		PacketNo:   buf[6],
		Pad:        buf[7],
	}
	if int(h.Size) > r.packetSize {
		return errInvalidPacketSizeTooLong
	}
	if int(h.Size) < headerSize {
		return errInvalidPacketSizeTooShort
	}
	_, err = io.ReadFull(r.transport, r.rbuf[headerSize:h.Size])
	if err != nil {
		return err
	}
	r.rpos = headerSize
	r.rsize = int(h.Size)
	r.final = h.Status&statusEndOfMessage != 0
	r.rPacketType = h.PacketType
	return nil
}

// BeginRead reads the header of the next packet sequence and returns its
// packet type. Subsequent ReadByte/Read calls consume the sequence across
// packet boundaries until the final packet is exhausted.
func (r *tdsBuffer) BeginRead() (packetType, error) {
	err := r.readNextPacket()
	if err != nil {
		return 0, err
	}
	return r.rPacketType, nil
}

func (r *tdsBuffer) ReadByte() (res byte, err error) {
	if r.rpos == r.rsize {
		if r.final {
			return 0, io.EOF
		}
		err = r.readNextPacket()
		if err != nil {
			return 0, err
		}
	}
	res = r.rbuf[r.rpos]
	r.rpos++
	return res, nil
}

func (r *tdsBuffer) byte() byte {
	b, err := r.ReadByte()
	if err != nil {
		badStreamPanic(err)
	}
	return b
}

func (r *tdsBuffer) ReadFull(buf []byte) {
	_, err := io.ReadFull(r, buf)
	if err != nil {
		badStreamPanic(err)
	}
}

func (r *tdsBuffer) uint64() uint64 {
	var buf [8]byte
	r.ReadFull(buf[:])
	return binary.LittleEndian.Uint64(buf[:])
}

func (r *tdsBuffer) int32() int32 {
	return int32(r.uint32())
}

func (r *tdsBuffer) uint32() uint32 {
	var buf [4]byte
	r.ReadFull(buf[:])
	return binary.LittleEndian.Uint32(buf[:])
}

func (r *tdsBuffer) uint16() uint16 {
	var buf [2]byte
	r.ReadFull(buf[:])
	return binary.LittleEndian.Uint16(buf[:])
}

func (r *tdsBuffer) BVarChar() string {
	return readBVarCharOrPanic(r)
}

func readBVarCharOrPanic(r io.Reader) string {
	s, err := readBVarChar(r)
	if err != nil {
		badStreamPanic(err)
	}
	return s
}

func readUsVarCharOrPanic(r io.Reader) string {
	s, err := readUsVarChar(r)
	if err != nil {
		badStreamPanic(err)
	}
	return s
}

func (r *tdsBuffer) UsVarChar() string {
	return readUsVarCharOrPanic(r)
}

func (r *tdsBuffer) Read(buf []byte) (copied int, err error) {
	copied = 0
	err = nil
	if r.rpos == r.rsize {
		if r.final {
			return 0, io.EOF
		}
		err = r.readNextPacket()
		if err != nil {
			return
		}
	}
	copied = copy(buf, r.rbuf[r.rpos:r.rsize])
	r.rpos += copied
	return
}
