package mssql

import (
	"crypto/des"
	"encoding/binary"
	"errors"
	"strings"

	"golang.org/x/crypto/md4"
)

const (
	negotiateMessage    = 1
	challengeMessage    = 2
	authenticateMessage = 3
)

const (
	negotiateUnicode              = 0x00000001
	negotiateNTLM                 = 0x00000200
	negotiateOEMDomainSupplied    = 0x00001000
	negotiateOEMWorkstatnSupplied = 0x00002000
	negotiateAlwaysSign           = 0x00008000
)

const negotiateFlags = negotiateUnicode |
	negotiateNTLM |
	negotiateOEMDomainSupplied |
	negotiateOEMWorkstatnSupplied |
	negotiateAlwaysSign

type ntlmAuth struct {
	Domain      string
	UserName    string
	Password    string
	Workstation string
}

// getAuth engages NTLM when the user name carries a DOMAIN\user
// qualifier.
func getAuth(user, password, service, workstation string) (Auth, bool) {
	if !strings.ContainsRune(user, '\\') {
		return nil, false
	}
	domainUser := strings.SplitN(user, "\\", 2)
	return &ntlmAuth{
		Domain:      domainUser[0],
		UserName:    domainUser[1],
		Password:    password,
		Workstation: workstation,
	}, true
}

func (auth *ntlmAuth) InitialBytes() ([]byte, error) {
	domainLen := len(auth.Domain)
	workstationLen := len(auth.Workstation)
	msg := make([]byte, 40+domainLen+workstationLen)
	copy(msg, []byte("NTLMSSP\x00"))
	binary.LittleEndian.PutUint32(msg[8:], negotiateMessage)
	binary.LittleEndian.PutUint32(msg[12:], negotiateFlags)
	// Domain Name Fields
	binary.LittleEndian.PutUint16(msg[16:], uint16(domainLen))
	binary.LittleEndian.PutUint16(msg[18:], uint16(domainLen))
	binary.LittleEndian.PutUint32(msg[20:], 40)
	// Workstation Fields
	binary.LittleEndian.PutUint16(msg[24:], uint16(workstationLen))
	binary.LittleEndian.PutUint16(msg[26:], uint16(workstationLen))
	binary.LittleEndian.PutUint32(msg[28:], uint32(40+domainLen))
	// Version
	binary.LittleEndian.PutUint32(msg[32:], 0)
	binary.LittleEndian.PutUint32(msg[36:], 0)
	// Payload
	copy(msg[40:], auth.Domain)
	copy(msg[40+domainLen:], auth.Workstation)
	return msg, nil
}

var errorNTLM = errors.New("NTLM protocol error")

func createDesKey(dst, src []byte) {
	dst[0] = src[0]
	dst[1] = (src[1] >> 1) | (src[0] << 7)
	dst[2] = (src[2] >> 2) | (src[1] << 6)
	dst[3] = (src[3] >> 3) | (src[2] << 5)
	dst[4] = (src[4] >> 4) | (src[3] << 4)
	dst[5] = (src[5] >> 5) | (src[4] << 3)
	dst[6] = (src[6] >> 6) | (src[5] << 2)
	dst[7] = src[6] << 1
	oddParity(dst)
}

func oddParity(bytes []byte) {
	for i := 0; i < len(bytes); i++ {
		b := bytes[i]
		needsParity := (((b >> 7) ^ (b >> 6) ^ (b >> 5) ^ (b >> 4) ^ (b >> 3) ^ (b >> 2) ^ (b >> 1)) & 0x01) == 0
		if needsParity {
			bytes[i] = bytes[i] | byte(0x01)
		} else {
			bytes[i] = bytes[i] & byte(0xfe)
		}
	}
}

func encryptDes(key []byte, cleartext []byte, ciphertext []byte) error {
	var desKey [8]byte
	createDesKey(desKey[:], key)
	cipher, err := des.NewCipher(desKey[:])
	if err != nil {
		return err
	}
	cipher.Encrypt(ciphertext, cleartext)
	return nil
}

func response(challenge [8]byte, hash [21]byte) (ret [24]byte) {
	_ = encryptDes(hash[:7], challenge[:], ret[:8])
	_ = encryptDes(hash[7:14], challenge[:], ret[8:16])
	_ = encryptDes(hash[14:], challenge[:], ret[16:])
	return
}

func lmHash(password string) (hash [21]byte) {
	var lmpass [14]byte
	copy(lmpass[:14], []byte(strings.ToUpper(password)))
	magic := []byte("KGS!@#$%")
	_ = encryptDes(lmpass[:7], magic, hash[:8])
	_ = encryptDes(lmpass[7:], magic, hash[8:])
	return
}

func lmResponse(challenge [8]byte, password string) [24]byte {
	hash := lmHash(password)
	return response(challenge, hash)
}

func ntlmHash(password string) (hash [21]byte) {
	h := md4.New()
	h.Write(str2ucs2(password))
	h.Sum(hash[:0])
	return
}

func ntResponse(challenge [8]byte, password string) [24]byte {
	hash := ntlmHash(password)
	return response(challenge, hash)
}

func (auth *ntlmAuth) NextBytes(bytes []byte) ([]byte, error) {
	if len(bytes) < 32 {
		return nil, errorNTLM
	}
	if string(bytes[0:8]) != "NTLMSSP\x00" {
		return nil, errorNTLM
	}
	if binary.LittleEndian.Uint32(bytes[8:12]) != challengeMessage {
		return nil, errorNTLM
	}
	flags := binary.LittleEndian.Uint32(bytes[12:16])
	var challenge [8]byte
	copy(challenge[:], bytes[24:32])

	lm := lmResponse(challenge, auth.Password)
	lmLen := len(lm)
	nt := ntResponse(challenge, auth.Password)
	ntLen := len(nt)

	domain16 := str2ucs2(auth.Domain)
	domainLen := len(domain16)
	user16 := str2ucs2(auth.UserName)
	userLen := len(user16)
	workstation16 := str2ucs2(auth.Workstation)
	workstationLen := len(workstation16)

	msg := make([]byte, 90+lmLen+ntLen+domainLen+userLen+workstationLen)
	copy(msg, []byte("NTLMSSP\x00"))
	binary.LittleEndian.PutUint32(msg[8:], authenticateMessage)
	// Lm Challenge Response Fields
	binary.LittleEndian.PutUint16(msg[12:], uint16(lmLen))
	binary.LittleEndian.PutUint16(msg[14:], uint16(lmLen))
	binary.LittleEndian.PutUint32(msg[16:], 90)
	// Nt Challenge Response Fields
	binary.LittleEndian.PutUint16(msg[20:], uint16(ntLen))
	binary.LittleEndian.PutUint16(msg[22:], uint16(ntLen))
	binary.LittleEndian.PutUint32(msg[24:], uint32(90+lmLen))
	// Domain Name Fields
	binary.LittleEndian.PutUint16(msg[28:], uint16(domainLen))
	binary.LittleEndian.PutUint16(msg[30:], uint16(domainLen))
	binary.LittleEndian.PutUint32(msg[32:], uint32(90+lmLen+ntLen))
	// User Name Fields
	binary.LittleEndian.PutUint16(msg[36:], uint16(userLen))
	binary.LittleEndian.PutUint16(msg[38:], uint16(userLen))
	binary.LittleEndian.PutUint32(msg[40:], uint32(90+lmLen+ntLen+domainLen))
	// Workstation Fields
	binary.LittleEndian.PutUint16(msg[44:], uint16(workstationLen))
	binary.LittleEndian.PutUint16(msg[46:], uint16(workstationLen))
	binary.LittleEndian.PutUint32(msg[48:], uint32(90+lmLen+ntLen+domainLen+userLen))
	// Encrypted Random Session Key Fields
	binary.LittleEndian.PutUint16(msg[52:], 0)
	binary.LittleEndian.PutUint16(msg[54:], 0)
	binary.LittleEndian.PutUint32(msg[58:], uint32(90+lmLen+ntLen+domainLen+userLen+workstationLen))
	// Negotiate Flags
	binary.LittleEndian.PutUint32(msg[62:], flags)
	// Version
	binary.LittleEndian.PutUint32(msg[66:], 0)
	binary.LittleEndian.PutUint32(msg[70:], 0)
	// MIC
	binary.LittleEndian.PutUint32(msg[74:], 0)
	binary.LittleEndian.PutUint32(msg[78:], 0)
	binary.LittleEndian.PutUint32(msg[82:], 0)
	binary.LittleEndian.PutUint32(msg[86:], 0)
	// Payload
	copy(msg[90:], lm[:])
	copy(msg[90+lmLen:], nt[:])
	copy(msg[90+lmLen+ntLen:], domain16)
	copy(msg[90+lmLen+ntLen+domainLen:], user16)
	copy(msg[90+lmLen+ntLen+domainLen+userLen:], workstation16)
	return msg, nil
}

func (auth *ntlmAuth) Free() {
}
