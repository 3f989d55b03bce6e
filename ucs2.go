package mssql

import (
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/text/encoding/unicode"
)

// All strings on the wire are UCS-2, a strict subset of UTF-16LE.
var ucs2Codec = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

func str2ucs2(s string) []byte {
	// Encoding to UTF-16LE cannot fail; malformed input runes are
	// replaced with U+FFFD.
	res, _ := ucs2Codec.NewEncoder().Bytes([]byte(s))
	return res
}

func ucs22str(s []byte) (string, error) {
	if len(s)%2 != 0 {
		return "", fmt.Errorf("illegal UCS2 string length: %d", len(s))
	}
	res, err := ucs2Codec.NewDecoder().Bytes(s)
	if err != nil {
		return "", err
	}
	return string(res), nil
}

func readUcs2(r io.Reader, numchars int) (res string, err error) {
	buf := make([]byte, numchars*2)
	_, err = io.ReadFull(r, buf)
	if err != nil {
		return "", err
	}
	return ucs22str(buf)
}

// B_VARCHAR: one byte character count followed by UCS-2 characters.
func readBVarChar(r io.Reader) (res string, err error) {
	var numchars uint8
	err = binary.Read(r, binary.LittleEndian, &numchars)
	if err != nil {
		return "", err
	}
	return readUcs2(r, int(numchars))
}

// US_VARCHAR: two byte character count followed by UCS-2 characters.
func readUsVarChar(r io.Reader) (res string, err error) {
	var numchars uint16
	err = binary.Read(r, binary.LittleEndian, &numchars)
	if err != nil {
		return "", err
	}
	return readUcs2(r, int(numchars))
}

// B_VARBYTE: one byte length followed by raw bytes.
func readBVarByte(r io.Reader) (res []byte, err error) {
	var length uint8
	err = binary.Read(r, binary.LittleEndian, &length)
	if err != nil {
		return
	}
	res = make([]byte, length)
	_, err = io.ReadFull(r, res)
	return
}
