package mssql

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func browserResponse(body string) []byte {
	out := []byte{svrResp}
	out = binary.LittleEndian.AppendUint16(out, uint16(len(body)))
	return append(out, body...)
}

func TestParseBrowserResponse(t *testing.T) {
	port, err := parseBrowserResponse(browserResponse(
		"ServerName;SUBDEV1;InstanceName;SQLEXPRESS;IsClustered;No;Version;12.0.2000.8;tcp;1433;;"))
	require.NoError(t, err)
	assert.EqualValues(t, 1433, port)
}

func TestParseBrowserResponseNoTcp(t *testing.T) {
	_, err := parseBrowserResponse(browserResponse(
		"ServerName;SUBDEV1;InstanceName;SQLEXPRESS;np;\\\\SUBDEV1\\pipe\\sql\\query;;"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no tcp port")
}

func TestParseBrowserResponseBadPort(t *testing.T) {
	_, err := parseBrowserResponse(browserResponse("tcp;notaport;;"))
	require.Error(t, err)
}

func TestParseBrowserResponseMalformed(t *testing.T) {
	for _, msg := range [][]byte{
		nil,
		{0x04},
		// wrong message type
		{0x04, 0x10, 0x00, 'x'},
		// declared size past the end
		{svrResp, 0xFF, 0xFF, 'a'},
	} {
		_, err := parseBrowserResponse(msg)
		assert.Error(t, err)
	}
}

func TestQueryBrowser(t *testing.T) {
	// stand-in browser service on a loopback udp port
	srv, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer srv.Close()

	go func() {
		req := make([]byte, 1024)
		n, addr, err := srv.ReadFrom(req)
		if err != nil {
			return
		}
		if n < 2 || req[0] != clntUcastInst || string(req[1:n-1]) != "SQLEXPRESS" || req[n-1] != 0 {
			return
		}
		_, _ = srv.WriteTo(browserResponse("InstanceName;SQLEXPRESS;tcp;14330;;"), addr)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got, err := queryBrowser(ctx, srv.LocalAddr().String(), "SQLEXPRESS")
	require.NoError(t, err)
	assert.EqualValues(t, 14330, got)
}

func TestResolveInstancePortNameTooLong(t *testing.T) {
	_, err := resolveInstancePort(context.Background(), "localhost",
		"instancenamesarelimitedtothirtytwocharacters")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than 32 characters")
}
