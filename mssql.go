package mssql

import (
	"context"

	"github.com/sqlpage/mssqltds/msdsn"
)

// Conn is an established session with a server. It is not safe for
// concurrent use.
type Conn struct {
	sess *tdsSession
}

// Connect parses the connection string, dials the server and runs the
// prelogin, TLS and login handshake. logger may be nil.
func Connect(ctx context.Context, dsn string, logger ContextLogger) (*Conn, error) {
	p, err := msdsn.Parse(dsn)
	if err != nil {
		return nil, err
	}
	return ConnectConfig(ctx, p, logger, nil)
}

// ConnectConfig is Connect with an already parsed configuration and an
// optional custom dialer.
func ConnectConfig(ctx context.Context, p msdsn.Config, logger ContextLogger, dialer Dialer) (*Conn, error) {
	sess, err := connect(ctx, logger, dialer, p)
	if err != nil {
		return nil, err
	}
	return &Conn{sess: sess}, nil
}

// SendBatch submits a SQL batch. The stream of any previous request is
// drained first. Call NextMessage until a final Done to consume the
// reply.
func (c *Conn) SendBatch(sqltext string) error {
	return c.sess.sendSQLBatch(sqltext, false)
}

// ResetSession submits a batch with the reset-session flag so the
// server discards session state from previous requests first.
func (c *Conn) ResetSession(sqltext string) error {
	return c.sess.sendSQLBatch(sqltext, true)
}

// NextMessage returns the next message from the reply stream: Row,
// Done, DoneProc, DoneInProc, LoginAck, Order, ReturnStatus or
// ReturnValue. Server errors are returned as Error values, transport
// and protocol faults as StreamError.
func (c *Conn) NextMessage() (interface{}, error) {
	return c.sess.nextMessage()
}

// Cancel sends an attention request asking the server to abort the
// running request. The reply stream must still be read until the
// attention-acknowledging Done arrives.
func (c *Conn) Cancel() error {
	return sendAttention(c.sess.buf)
}

// Database reports the current database as tracked from server
// environment change notifications.
func (c *Conn) Database() string {
	return c.sess.database
}

// ServerVersion reports the login acknowledgement sent by the server.
func (c *Conn) ServerVersion() LoginAck {
	return c.sess.loginAck
}

// Close tears down the transport.
func (c *Conn) Close() error {
	return c.sess.Close()
}
