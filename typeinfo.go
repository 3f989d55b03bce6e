package mssql

// Data type identifiers.
// http://msdn.microsoft.com/en-us/library/dd358284.aspx
const (
	// fixed length
	typeNull     = 0x1f
	typeInt1     = 0x30
	typeBit      = 0x32
	typeInt2     = 0x34
	typeInt4     = 0x38
	typeDateTim4 = 0x3a
	typeFlt4     = 0x3b
	typeMoney    = 0x3c
	typeDateTime = 0x3d
	typeFlt8     = 0x3e
	typeMoney4   = 0x7a
	typeInt8     = 0x7f

	// variable length
	typeGuid            = 0x24
	typeIntN            = 0x26
	typeDecimal         = 0x37 // legacy
	typeNumeric         = 0x3f // legacy
	typeBitN            = 0x68
	typeDecimalN        = 0x6a
	typeNumericN        = 0x6c
	typeFltN            = 0x6d
	typeMoneyN          = 0x6e
	typeDateTimeN       = 0x6f
	typeDateN           = 0x28
	typeTimeN           = 0x29
	typeDateTime2N      = 0x2a
	typeDateTimeOffsetN = 0x2b
	typeChar            = 0x2f // legacy
	typeVarChar         = 0x27 // legacy
	typeBinary          = 0x2d // legacy
	typeVarBinary       = 0x25 // legacy

	// long length types
	typeBigVarBin  = 0xa5
	typeBigVarChar = 0xa7
	typeBigBinary  = 0xad
	typeBigChar    = 0xaf
	typeNVarChar   = 0xe7
	typeNChar      = 0xef
	typeXml        = 0xf1
	typeUdt        = 0xf0
	typeText       = 0x23
	typeImage      = 0x22
	typeNText      = 0x63
	typeVariant    = 0x62
)

// typeInfo describes the wire encoding of a single value well enough
// to find its end in the stream. Values themselves are handed to the
// caller undecoded.
type typeInfo struct {
	TypeId    uint8
	Size      int
	Scale     uint8
	Prec      uint8
	Collation [5]byte
	Reader    func(ti *typeInfo, r *tdsBuffer) []byte
}

func readTypeInfo(r *tdsBuffer) (res typeInfo) {
	res.TypeId = r.byte()
	switch res.TypeId {
	case typeNull, typeInt1, typeBit, typeInt2, typeInt4, typeDateTim4,
		typeFlt4, typeMoney, typeDateTime, typeFlt8, typeMoney4, typeInt8:
		// those are fixed length types
		switch res.TypeId {
		case typeNull:
			res.Size = 0
		case typeInt1, typeBit:
			res.Size = 1
		case typeInt2:
			res.Size = 2
		case typeInt4, typeDateTim4, typeFlt4, typeMoney4:
			res.Size = 4
		case typeMoney, typeDateTime, typeFlt8, typeInt8:
			res.Size = 8
		}
		res.Reader = readFixedType
	default:
		// all others are VARLENTYPE
		readVarLen(&res, r)
	}
	return
}

func readFixedType(ti *typeInfo, r *tdsBuffer) []byte {
	buf := make([]byte, ti.Size)
	r.ReadFull(buf)
	return buf
}

func readByteLenType(ti *typeInfo, r *tdsBuffer) []byte {
	size := r.byte()
	if size == 0 {
		return nil
	}
	if int(size) > ti.Size {
		badStreamPanicf("invalid size %d for BYTELEN value, max is %d", size, ti.Size)
	}
	buf := make([]byte, size)
	r.ReadFull(buf)
	return buf
}

func readShortLenType(ti *typeInfo, r *tdsBuffer) []byte {
	size := r.uint16()
	if size == 0xffff {
		// CHARBIN_NULL
		return nil
	}
	buf := make([]byte, size)
	r.ReadFull(buf)
	return buf
}

func readVarLen(ti *typeInfo, r *tdsBuffer) {
	switch ti.TypeId {
	case typeDateN:
		ti.Size = 3
		ti.Reader = readByteLenType
	case typeTimeN:
		ti.Scale = r.byte()
		ti.Size = scaleToTimeSize(ti.Scale)
		ti.Reader = readByteLenType
	case typeDateTime2N:
		ti.Scale = r.byte()
		ti.Size = scaleToTimeSize(ti.Scale) + 3
		ti.Reader = readByteLenType
	case typeDateTimeOffsetN:
		ti.Scale = r.byte()
		ti.Size = scaleToTimeSize(ti.Scale) + 5
		ti.Reader = readByteLenType
	case typeGuid, typeIntN, typeDecimal, typeNumeric, typeBitN,
		typeDecimalN, typeNumericN, typeFltN, typeMoneyN, typeDateTimeN,
		typeChar, typeVarChar, typeBinary, typeVarBinary:
		// byte len types
		ti.Size = int(r.byte())
		switch ti.TypeId {
		case typeDecimal, typeNumeric, typeDecimalN, typeNumericN:
			ti.Prec = r.byte()
			ti.Scale = r.byte()
		}
		ti.Reader = readByteLenType
	case typeBigVarBin, typeBigVarChar, typeBigBinary, typeBigChar,
		typeNVarChar, typeNChar:
		// short len types
		ti.Size = int(r.uint16())
		switch ti.TypeId {
		case typeBigVarChar, typeBigChar, typeNVarChar, typeNChar:
			r.ReadFull(ti.Collation[:])
		}
		if ti.Size == 0xffff {
			// partially length-prefixed stream
			badStreamPanicf("PLP values are not supported")
		}
		ti.Reader = readShortLenType
	default:
		badStreamPanicf("unsupported type %d", ti.TypeId)
	}
}

func scaleToTimeSize(scale uint8) int {
	switch {
	case scale <= 2:
		return 3
	case scale <= 4:
		return 4
	default:
		return 5
	}
}
