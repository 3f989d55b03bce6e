package mssql

import (
	"net"
	"time"
)

// timeoutConn stamps a fresh deadline on the underlying connection
// before every read and write.
type timeoutConn struct {
	c       net.Conn
	timeout time.Duration
}

func newTimeoutConn(conn net.Conn, timeout time.Duration) *timeoutConn {
	return &timeoutConn{
		c:       conn,
		timeout: timeout,
	}
}

func (c *timeoutConn) Read(b []byte) (n int, err error) {
	if c.timeout > 0 {
		err = c.c.SetDeadline(time.Now().Add(c.timeout))
		if err != nil {
			return
		}
	}
	return c.c.Read(b)
}

func (c *timeoutConn) Write(b []byte) (n int, err error) {
	if c.timeout > 0 {
		err = c.c.SetDeadline(time.Now().Add(c.timeout))
		if err != nil {
			return
		}
	}
	return c.c.Write(b)
}

func (c *timeoutConn) Close() error {
	return c.c.Close()
}

func (c *timeoutConn) LocalAddr() net.Addr {
	return c.c.LocalAddr()
}

func (c *timeoutConn) RemoteAddr() net.Addr {
	return c.c.RemoteAddr()
}

func (c *timeoutConn) SetDeadline(t time.Time) error {
	return c.c.SetDeadline(t)
}

func (c *timeoutConn) SetReadDeadline(t time.Time) error {
	return c.c.SetReadDeadline(t)
}

func (c *timeoutConn) SetWriteDeadline(t time.Time) error {
	return c.c.SetWriteDeadline(t)
}
