package mssql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// typeInfoBuf frames a TYPE_INFO byte stream followed by value bytes
// as a single reply packet so boundary readers can run against it.
func typeInfoBuf(b ...byte) *tdsBuffer {
	return makeBuf(defaultPacketSize, writePackets(b, defaultPacketSize, packReply))
}

func readValue(t *testing.T, b ...byte) []byte {
	t.Helper()
	buf := typeInfoBuf(b...)
	_, err := buf.BeginRead()
	require.NoError(t, err)
	ti := readTypeInfo(buf)
	return ti.Reader(&ti, buf)
}

func TestReadTypeInfoFixedTypes(t *testing.T) {
	sizes := map[byte]int{
		typeNull:     0,
		typeInt1:     1,
		typeBit:      1,
		typeInt2:     2,
		typeInt4:     4,
		typeDateTim4: 4,
		typeFlt4:     4,
		typeMoney4:   4,
		typeMoney:    8,
		typeDateTime: 8,
		typeFlt8:     8,
		typeInt8:     8,
	}
	for id, size := range sizes {
		buf := typeInfoBuf(id)
		_, err := buf.BeginRead()
		require.NoError(t, err)
		ti := readTypeInfo(buf)
		assert.Equal(t, size, ti.Size, "type %#x", id)
	}
}

func TestReadFixedValue(t *testing.T) {
	v := readValue(t, typeInt4, 0xD2, 0x04, 0x00, 0x00)
	assert.Equal(t, []byte{0xD2, 0x04, 0x00, 0x00}, v)
}

func TestReadByteLenValue(t *testing.T) {
	// INTN with a declared max of 8 carrying a 4-byte value
	v := readValue(t, typeIntN, 8, 4, 0x0A, 0x00, 0x00, 0x00)
	assert.Equal(t, []byte{0x0A, 0x00, 0x00, 0x00}, v)
}

func TestReadByteLenNull(t *testing.T) {
	v := readValue(t, typeIntN, 8, 0)
	assert.Nil(t, v)
}

func TestReadByteLenOversized(t *testing.T) {
	buf := typeInfoBuf(typeIntN, 4, 9, 0, 0, 0, 0, 0, 0, 0, 0, 0)
	_, err := buf.BeginRead()
	require.NoError(t, err)
	ti := readTypeInfo(buf)
	assert.PanicsWithError(t,
		streamErrorf("invalid size %d for BYTELEN value, max is %d", 9, 4).Error(),
		func() { ti.Reader(&ti, buf) })
}

func TestReadDecimalPrecScale(t *testing.T) {
	buf := typeInfoBuf(typeDecimalN, 9, 18, 2)
	_, err := buf.BeginRead()
	require.NoError(t, err)
	ti := readTypeInfo(buf)
	assert.EqualValues(t, 18, ti.Prec)
	assert.EqualValues(t, 2, ti.Scale)
}

func TestReadShortLenValueWithCollation(t *testing.T) {
	// NVARCHAR(…): max size u16, 5 collation bytes, then u16-prefixed value
	v := readValue(t, typeNVarChar,
		0x00, 0x10, // declared max
		0x09, 0x04, 0xD0, 0x00, 0x34, // collation
		0x04, 0x00, 'a', 0x00) // 4 bytes of UCS-2
	assert.Equal(t, []byte{'a', 0x00}, v)
}

func TestReadShortLenNull(t *testing.T) {
	v := readValue(t, typeBigVarBin, 0x00, 0x10, 0xFF, 0xFF)
	assert.Nil(t, v)
}

func TestReadTimeScaleSizes(t *testing.T) {
	for scale, want := range map[byte]int{0: 3, 2: 3, 3: 4, 4: 4, 5: 5, 7: 5} {
		buf := typeInfoBuf(typeTimeN, scale)
		_, err := buf.BeginRead()
		require.NoError(t, err)
		ti := readTypeInfo(buf)
		assert.Equal(t, want, ti.Size, "scale %d", scale)
	}
}

func TestReadTypeInfoPLPUnsupported(t *testing.T) {
	buf := typeInfoBuf(typeBigVarBin, 0xFF, 0xFF)
	_, err := buf.BeginRead()
	require.NoError(t, err)
	assert.Panics(t, func() { readTypeInfo(buf) })
}

func TestReadTypeInfoUnknownType(t *testing.T) {
	buf := typeInfoBuf(0x99)
	_, err := buf.BeginRead()
	require.NoError(t, err)
	assert.Panics(t, func() { readTypeInfo(buf) })
}
