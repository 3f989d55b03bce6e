package mssql

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// PRELOGIN option tokens
// http://msdn.microsoft.com/en-us/library/dd357559.aspx
const (
	preloginVERSION    = 0
	preloginENCRYPTION = 1
	preloginINSTOPT    = 2
	preloginTHREADID   = 3
	preloginMARS       = 4
	preloginTRACEID    = 5
	preloginTERMINATOR = 0xff
)

// negotiated encryption level
const (
	encryptOff    = 0 // Encryption is available but off.
	encryptOn     = 1 // Encryption is available and on.
	encryptNotSup = 2 // Encryption is not available.
	encryptReq    = 3 // Encryption is required.
)

// encodePrelogin lays out the PRELOGIN option block: {token, offset u16
// BE, length u16 BE} triples in ascending token order, a 0xFF terminator,
// then the option payloads packed contiguously at the declared offsets.
// VERSION must be present and, being token 0, always sorts first.
func encodePrelogin(fields map[uint8][]byte) []byte {
	util := make([]byte, 0, 5*len(fields)+1)
	keys := make([]uint8, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	offset := uint16(5*len(fields) + 1)
	data := make([]byte, 0, 30)
	for _, k := range keys {
		util = append(util, k)
		util = binary.BigEndian.AppendUint16(util, offset)
		size := uint16(len(fields[k]))
		util = binary.BigEndian.AppendUint16(util, size)
		offset += size
		data = append(data, fields[k]...)
	}
	util = append(util, preloginTERMINATOR)
	return append(util, data...)
}

func writePrelogin(packetType packetType, w *tdsBuffer, fields map[uint8][]byte) error {
	w.BeginPacket(packetType, false)
	if _, err := w.Write(encodePrelogin(fields)); err != nil {
		return err
	}
	return w.FinishPacket()
}

// parsePrelogin parses a PRELOGIN option block back into its raw fields.
func parsePrelogin(buf []byte) (map[uint8][]byte, error) {
	results := map[uint8][]byte{}
	offset := 0
	for {
		if offset >= len(buf) {
			return nil, streamErrorf("PRELOGIN packet has no terminator")
		}
		fieldType := buf[offset]
		if fieldType == preloginTERMINATOR {
			break
		}
		if offset+5 > len(buf) {
			return nil, streamErrorf("PRELOGIN packet is too short")
		}
		fieldOffset := binary.BigEndian.Uint16(buf[offset+1:])
		fieldLen := binary.BigEndian.Uint16(buf[offset+3:])
		if int(fieldOffset)+int(fieldLen) > len(buf) {
			return nil, streamErrorf("PRELOGIN option %d points past the end of the packet", fieldType)
		}
		results[fieldType] = buf[fieldOffset : fieldOffset+fieldLen]
		offset += 5
	}
	return results, nil
}

func readPrelogin(r *tdsBuffer) (map[uint8][]byte, error) {
	packetType, err := r.BeginRead()
	if err != nil {
		return nil, err
	}
	struct_buf := make([]byte, 0, 128)
	for {
		var b [256]byte
		n, err := r.Read(b[:])
		if err != nil {
			break
		}
		struct_buf = append(struct_buf, b[:n]...)
	}
	if packetType != packReply {
		return nil, streamErrorf("invalid PRELOGIN response packet type %d", packetType)
	}
	if len(struct_buf) == 0 {
		return nil, streamErrorf("invalid empty PRELOGIN response")
	}
	return parsePrelogin(struct_buf)
}

// preloginVersionField is the required 6-byte VERSION option.
type preloginVersionField struct {
	Major    uint8
	Minor    uint8
	Build    uint16
	SubBuild uint16
}

func (v preloginVersionField) String() string {
	return fmt.Sprintf("v%d.%d.%d", v.Major, v.Minor, v.Build)
}

func (v preloginVersionField) bytes() []byte {
	b := make([]byte, 6)
	b[0] = v.Major
	b[1] = v.Minor
	binary.BigEndian.PutUint16(b[2:], v.Build)
	binary.BigEndian.PutUint16(b[4:], v.SubBuild)
	return b
}

func parsePreloginVersion(b []byte) (preloginVersionField, error) {
	if len(b) < 6 {
		return preloginVersionField{}, streamErrorf("invalid PRELOGIN VERSION option size %d", len(b))
	}
	return preloginVersionField{
		Major:    b[0],
		Minor:    b[1],
		Build:    binary.BigEndian.Uint16(b[2:]),
		SubBuild: binary.BigEndian.Uint16(b[4:]),
	}, nil
}

// preloginTraceID is the 36-byte TRACEID option: connection GUID,
// activity GUID and a big-endian activity sequence.
func preloginTraceID(connID, activityID uuid.UUID, seq uint32) []byte {
	b := make([]byte, 0, 36)
	b = append(b, connID[:]...)
	b = append(b, activityID[:]...)
	return binary.BigEndian.AppendUint32(b, seq)
}
