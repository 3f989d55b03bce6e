package mssql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePacketsSplitsPayload(t *testing.T) {
	// 9 bytes of payload at 12-byte packets leave 4 bytes of contents
	// per packet, so three packets with the last one holding one byte.
	out := writePackets([]byte("123456789"), 12, packSQLBatch)

	require.Len(t, out, 9+3*headerSize)

	assert.Equal(t, []byte{
		1, 0, 0, 12, 0, 0, 1, 0, '1', '2', '3', '4',
		1, 0, 0, 12, 0, 0, 1, 0, '5', '6', '7', '8',
		1, 1, 0, 9, 0, 0, 1, 0, '9',
	}, out)
}

func TestWritePacketsSingle(t *testing.T) {
	out := writePackets([]byte{0xAB}, 4096, packPrelogin)
	assert.Equal(t, []byte{18, 1, 0, 9, 0, 0, 1, 0, 0xAB}, out)
}

func TestWritePacketsExactFit(t *testing.T) {
	out := writePackets([]byte("1234"), 12, packNormal)
	assert.Equal(t, []byte{15, 1, 0, 12, 0, 0, 1, 0, '1', '2', '3', '4'}, out)
}

func TestWritePacketsEmptyPayload(t *testing.T) {
	out := writePackets(nil, 4096, packAttention)
	assert.Equal(t, []byte{6, 1, 0, 8, 0, 0, 1, 0}, out)
}

func TestReadHeader(t *testing.T) {
	h, err := readHeader([]byte{4, 1, 0x10, 0x02, 0x12, 0x34, 2, 0})
	require.NoError(t, err)
	assert.Equal(t, header{
		PacketType: packReply,
		Status:     statusEndOfMessage,
		Size:       0x1002,
		Spid:       0x1234,
		PacketNo:   2,
	}, h)
}

func TestReadHeaderTooShort(t *testing.T) {
	_, err := readHeader([]byte{4, 1, 0})
	var serr StreamError
	require.ErrorAs(t, err, &serr)
}

func TestReadHeaderInvalidType(t *testing.T) {
	_, err := readHeader([]byte{99, 1, 0, 8, 0, 0, 1, 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid packet type")
}

func TestHeaderEncodeRoundtrip(t *testing.T) {
	in := header{
		PacketType: packLogin7,
		Status:     statusResetConnection,
		Size:       513,
		Spid:       7,
		PacketNo:   3,
	}
	var b [headerSize]byte
	in.encode(b[:])
	out, err := readHeader(b[:])
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
