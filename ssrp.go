package mssql

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// SQL Server Resolution Protocol
// https://msdn.microsoft.com/en-us/library/cc219703.aspx
const (
	ssrpPort           = 1434
	clntUcastInst      = 0x04
	svrResp            = 0x05
	maxInstanceNameLen = 32
)

// resolveInstancePort asks the browser service on the host for the tcp
// port a named instance listens on.
func resolveInstancePort(ctx context.Context, host, instance string) (uint64, error) {
	return queryBrowser(ctx, net.JoinHostPort(host, strconv.Itoa(ssrpPort)), instance)
}

func queryBrowser(ctx context.Context, addr, instance string) (uint64, error) {
	if len(instance) > maxInstanceNameLen {
		return 0, fmt.Errorf("invalid instance name '%v': more than %d characters", instance, maxInstanceNameLen)
	}
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "udp", addr)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(5 * time.Second)
	}
	if err = conn.SetDeadline(deadline); err != nil {
		return 0, err
	}

	req := make([]byte, 0, len(instance)+2)
	req = append(req, clntUcastInst)
	req = append(req, instance...)
	req = append(req, 0)
	if _, err = conn.Write(req); err != nil {
		return 0, err
	}

	resp := make([]byte, 16*1024-1)
	read, err := conn.Read(resp)
	if err != nil {
		return 0, err
	}

	port, err := parseBrowserResponse(resp[:read])
	if err != nil {
		return 0, fmt.Errorf("unable to get instance '%v' port from '%v': %v", instance, addr, err)
	}
	return port, nil
}

// parseBrowserResponse walks the semicolon separated key/value pairs
// of an SVR_RESP payload and picks out the advertised tcp port.
func parseBrowserResponse(msg []byte) (uint64, error) {
	if len(msg) < 3 || msg[0] != svrResp {
		return 0, fmt.Errorf("malformed browser response")
	}
	size := binary.LittleEndian.Uint16(msg[1:3])
	if int(size) > len(msg)-3 {
		return 0, fmt.Errorf("truncated browser response: declared %d bytes, got %d", size, len(msg)-3)
	}
	tokens := strings.Split(string(msg[3:3+size]), ";")
	for i := 0; i+1 < len(tokens); i += 2 {
		if strings.EqualFold(tokens[i], "tcp") {
			port, err := strconv.ParseUint(tokens[i+1], 10, 16)
			if err != nil {
				return 0, fmt.Errorf("invalid tcp port in browser response '%v': %v", tokens[i+1], err)
			}
			return port, nil
		}
	}
	return 0, fmt.Errorf("no tcp port in browser response")
}
