package mssql

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"testing"
)

func TestGetAuth(t *testing.T) {
	auth, ok := getAuth("CORP\\username", "pwd", "MSSQLSvc/host", "workstation")
	if !ok {
		t.Fatal("DOMAIN\\user should engage NTLM")
	}
	ntlm, ok := auth.(*ntlmAuth)
	if !ok {
		t.Fatal("expected ntlm authenticator")
	}
	if ntlm.Domain != "CORP" || ntlm.UserName != "username" {
		t.Errorf("bad domain/user split: %q %q", ntlm.Domain, ntlm.UserName)
	}

	if _, ok = getAuth("username", "pwd", "", ""); ok {
		t.Error("plain user name must not engage NTLM")
	}
	if _, ok = getAuth("", "pwd", "", ""); ok {
		t.Error("empty user name must not engage NTLM")
	}
}

func TestNegotiateMessage(t *testing.T) {
	auth := ntlmAuth{Domain: "CORP", Workstation: "WS"}
	msg, err := auth.InitialBytes()
	if err != nil {
		t.Fatal(err)
	}
	if len(msg) != 40+4+2 {
		t.Fatalf("unexpected negotiate message length %d", len(msg))
	}
	if !bytes.HasPrefix(msg, []byte("NTLMSSP\x00")) {
		t.Error("negotiate message has no NTLMSSP signature")
	}
	if binary.LittleEndian.Uint32(msg[8:]) != negotiateMessage {
		t.Error("wrong message type")
	}
	if string(msg[40:44]) != "CORP" || string(msg[44:]) != "WS" {
		t.Error("domain and workstation not laid out after the header")
	}
}

// Test vectors from the NTLM authentication protocol description at
// http://davenport.sourceforge.net/ntlm.html for the password
// "SecREt01" and server challenge 0x0123456789abcdef.
var ntlmChallenge = [8]byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef}

func TestLMResponse(t *testing.T) {
	want, _ := hex.DecodeString("c337cd5cbd44fc9782a667af6d427c6de67c20c2d3e77c56")
	got := lmResponse(ntlmChallenge, "SecREt01")
	if !bytes.Equal(got[:], want) {
		t.Errorf("lmResponse = %x, want %x", got, want)
	}
}

func TestNTResponse(t *testing.T) {
	want, _ := hex.DecodeString("25a98c1c31e81847466b29b2df4680f39958fb8c213a9cc6")
	got := ntResponse(ntlmChallenge, "SecREt01")
	if !bytes.Equal(got[:], want) {
		t.Errorf("ntResponse = %x, want %x", got, want)
	}
}

func TestNextBytesRejectsBadChallenge(t *testing.T) {
	auth := ntlmAuth{Domain: "CORP", UserName: "u", Password: "p"}

	if _, err := auth.NextBytes([]byte("garbage")); err == nil {
		t.Error("short challenge message should be rejected")
	}

	msg := make([]byte, 40)
	copy(msg, "NOTNTLM\x00")
	if _, err := auth.NextBytes(msg); err == nil {
		t.Error("bad signature should be rejected")
	}
}
