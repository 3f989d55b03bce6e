package mssql

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodePrelogin(t *testing.T) {
	out := encodePrelogin(map[uint8][]byte{
		preloginVERSION:    {14, 0, 0x0C, 0xD1, 0, 0},
		preloginENCRYPTION: {encryptOff},
		preloginINSTOPT:    {0},
		preloginTHREADID:   {0x78, 0x56, 0x34, 0x12},
		preloginMARS:       {0},
	})

	// 5 option descriptors plus the terminator put the first payload
	// at offset 26.
	assert.Equal(t, []byte{
		0, 0x00, 26, 0x00, 6,
		1, 0x00, 32, 0x00, 1,
		2, 0x00, 33, 0x00, 1,
		3, 0x00, 34, 0x00, 4,
		4, 0x00, 38, 0x00, 1,
		0xFF,
		14, 0, 0x0C, 0xD1, 0, 0,
		encryptOff,
		0,
		0x78, 0x56, 0x34, 0x12,
		0,
	}, out)
}

func TestEncodePreloginReferenceVector(t *testing.T) {
	out := encodePrelogin(map[uint8][]byte{
		preloginVERSION:    preloginVersionField{Major: 9}.bytes(),
		preloginENCRYPTION: {encryptOn},
		preloginINSTOPT:    {0},
		preloginTHREADID:   {0xB8, 0x0D, 0x00, 0x00},
		preloginMARS:       {1},
	})

	want := hexBytes(t, "00 00 1A 00 06  01 00 20 00 01  02 00 21 00 01\n"+
		"03 00 22 00 04  04 00 26 00 01  FF\n"+
		"09 00 00 00 00 00  01  00  B8 0D 00 00  01")
	assert.Equal(t, want, out)
}

func TestParsePrelogin(t *testing.T) {
	fields, err := parsePrelogin([]byte{
		0x00, 0x00, 0x0B, 0x00, 0x06,
		0x01, 0x00, 0x11, 0x00, 0x01,
		0xFF,
		0x0E, 0x00, 0x0C, 0xD1, 0x00, 0x00,
		0x00,
	})
	require.NoError(t, err)

	ver, err := parsePreloginVersion(fields[preloginVERSION])
	require.NoError(t, err)
	assert.Equal(t, preloginVersionField{Major: 14, Minor: 0, Build: 3281}, ver)
	assert.Equal(t, "v14.0.3281", ver.String())
	assert.Equal(t, []byte{encryptOff}, fields[preloginENCRYPTION])
}

func TestParsePreloginRoundtrip(t *testing.T) {
	in := map[uint8][]byte{
		preloginVERSION:    preloginVersionField{Major: 15, Minor: 0, Build: 4123}.bytes(),
		preloginENCRYPTION: {encryptReq},
		preloginINSTOPT:    append([]byte("MSSQLSERVER"), 0),
	}
	out, err := parsePrelogin(encodePrelogin(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestParsePreloginNoTerminator(t *testing.T) {
	_, err := parsePrelogin([]byte{0x00, 0x00, 0x0B, 0x00, 0x06})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "terminator")
}

func TestParsePreloginOptionPastEnd(t *testing.T) {
	_, err := parsePrelogin([]byte{0x00, 0x00, 0x06, 0x00, 0x20, 0xFF})
	require.Error(t, err)
}

func TestParsePreloginVersionTooShort(t *testing.T) {
	_, err := parsePreloginVersion([]byte{14, 0})
	require.Error(t, err)
}

func TestReadPrelogin(t *testing.T) {
	payload := encodePrelogin(map[uint8][]byte{
		preloginVERSION:    preloginVersionField{Major: 12, Minor: 0, Build: 2000}.bytes(),
		preloginENCRYPTION: {encryptNotSup},
	})
	buf := makeBuf(defaultPacketSize, writePackets(payload, defaultPacketSize, packReply))

	fields, err := readPrelogin(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{encryptNotSup}, fields[preloginENCRYPTION])
}

func TestReadPreloginRejectsWrongPacketType(t *testing.T) {
	payload := encodePrelogin(map[uint8][]byte{
		preloginVERSION: preloginVersionField{Major: 12}.bytes(),
	})
	buf := makeBuf(defaultPacketSize, writePackets(payload, defaultPacketSize, packNormal))

	_, err := readPrelogin(buf)
	require.Error(t, err)
}

func TestPreloginTraceID(t *testing.T) {
	connID := uuid.MustParse("01020304-0506-0708-090a-0b0c0d0e0f10")
	activityID := uuid.MustParse("11121314-1516-1718-191a-1b1c1d1e1f20")

	b := preloginTraceID(connID, activityID, 1)
	require.Len(t, b, 36)
	assert.Equal(t, connID[:], b[:16])
	assert.Equal(t, activityID[:], b[16:32])
	assert.Equal(t, []byte{0, 0, 0, 1}, b[32:])
}
