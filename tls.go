package mssql

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/sqlpage/mssqltds/msdsn"
)

// tlsHandshakeConn is used during the TLS handshake. The protocol
// requires the handshake records to travel inside PRELOGIN packets, so
// writes are buffered into an outgoing packet that is only flushed when
// the TLS layer turns around to read the server's answer.
type tlsHandshakeConn struct {
	buf           *tdsBuffer
	packetPending bool
	continueRead  bool
}

func (c *tlsHandshakeConn) Read(b []byte) (cnt int, err error) {
	if c.packetPending {
		c.packetPending = false

		// Flush any pending handshake records before reading.
		err = c.buf.FinishPacket()
		if err != nil {
			return 0, fmt.Errorf("cannot send handshake packet: %s", err.Error())
		}
		c.continueRead = false
	}

	if !c.continueRead {
		var packet packetType
		packet, err = c.buf.BeginRead()
		if err != nil {
			return 0, fmt.Errorf("cannot read handshake packet: %s", err.Error())
		}
		// Servers frame the handshake reply as a tabular result;
		// some wrap it in a prelogin packet instead.
		if packet != packReply && packet != packPrelogin {
			return 0, fmt.Errorf("unexpected packet type during TLS handshake: %d", packet)
		}
		c.continueRead = true
	}

	return c.buf.Read(b)
}

func (c *tlsHandshakeConn) Write(b []byte) (int, error) {
	if !c.packetPending {
		c.buf.BeginPacket(packPrelogin, false)
		c.packetPending = true
	}
	return c.buf.Write(b)
}

func (c *tlsHandshakeConn) Close() error {
	return c.buf.transport.Close()
}

func (c *tlsHandshakeConn) LocalAddr() net.Addr {
	return nil
}

func (c *tlsHandshakeConn) RemoteAddr() net.Addr {
	return nil
}

func (c *tlsHandshakeConn) SetDeadline(_ time.Time) error {
	return nil
}

func (c *tlsHandshakeConn) SetReadDeadline(_ time.Time) error {
	return nil
}

func (c *tlsHandshakeConn) SetWriteDeadline(_ time.Time) error {
	return nil
}

// passthroughConn delegates to the underlying connection. It exists so
// the connection beneath crypto/tls can be swapped to the raw transport
// once the handshake is done, after which TLS records travel on the
// wire without packet framing.
type passthroughConn struct {
	c net.Conn
}

func (c passthroughConn) Read(b []byte) (n int, err error) {
	return c.c.Read(b)
}

func (c passthroughConn) Write(b []byte) (n int, err error) {
	return c.c.Write(b)
}

func (c passthroughConn) Close() error {
	return c.c.Close()
}

func (c passthroughConn) LocalAddr() net.Addr {
	return c.c.LocalAddr()
}

func (c passthroughConn) RemoteAddr() net.Addr {
	return c.c.RemoteAddr()
}

func (c passthroughConn) SetDeadline(t time.Time) error {
	return c.c.SetDeadline(t)
}

func (c passthroughConn) SetReadDeadline(t time.Time) error {
	return c.c.SetReadDeadline(t)
}

func (c passthroughConn) SetWriteDeadline(t time.Time) error {
	return c.c.SetWriteDeadline(t)
}

// setupTLS upgrades the session transport to TLS, running the handshake
// through the packet-framed adapter and then switching the buffer onto
// the raw TLS stream.
func setupTLS(outbuf *tdsBuffer, toconn net.Conn, p msdsn.Config) error {
	config := p.TLSConfig
	if config == nil {
		config = &tls.Config{}
	}
	if !config.DynamicRecordSizingDisabled {
		config = config.Clone()

		// The server expects one TLS record per encrypted packet;
		// Go's record sizing heuristic would split them.
		config.DynamicRecordSizingDisabled = true
	}

	handshakeConn := tlsHandshakeConn{buf: outbuf}
	passthrough := passthroughConn{c: &handshakeConn}
	tlsConn := tls.Client(&passthrough, config)
	err := tlsConn.Handshake()
	if err != nil {
		return fmt.Errorf("TLS Handshake failed: %v", err)
	}
	passthrough.c = toconn
	outbuf.transport = tlsConn
	return nil
}
