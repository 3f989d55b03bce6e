package mssql

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"

	"github.com/google/uuid"

	"github.com/sqlpage/mssqltds/msdsn"
)

const defaultServerPort = 1433

const defaultPacketSize = 4096

// driver version reported in PRELOGIN and LOGIN7
const (
	driverMajorVersion = 1
	driverMinorVersion = 0
	driverBuildVersion = 0
)

// ErrNoTLS is returned when the connection string requires encryption
// but the server cannot provide it.
var ErrNoTLS = errors.New("mssql: server does not support encryption")

// tdsSession is the state of one live connection: the packet buffer
// that owns the transport, the environment the server pushed down and
// the reply-stream bookkeeping.
type tdsSession struct {
	buf        *tdsBuffer
	loginAck   LoginAck
	database   string
	tranid     uint64
	columns    []columnStruct
	logFlags   uint64
	logger     ContextLogger
	connID     uuid.UUID
	activityID uuid.UUID

	// responseStarted is true while nextMessage is inside a reply's
	// token stream.
	responseStarted bool
	// pendingDone counts reply streams that still owe a terminating
	// DONE. The session must not carry a new request while it is
	// above zero.
	pendingDone int
}

func sendPrelogin(buf *tdsBuffer, p msdsn.Config, connID, activityID uuid.UUID) error {
	var encrypt byte
	switch p.Encryption {
	case msdsn.EncryptionDisabled:
		encrypt = encryptNotSup
	case msdsn.EncryptionRequired:
		encrypt = encryptOn
	default:
		encrypt = encryptOff
	}

	instance := []byte(p.Instance)
	threadID := make([]byte, 4)
	binary.LittleEndian.PutUint32(threadID, uint32(os.Getpid()))

	ver := preloginVersionField{
		Major: driverMajorVersion,
		Minor: driverMinorVersion,
		Build: driverBuildVersion,
	}

	fields := map[uint8][]byte{
		preloginVERSION:    ver.bytes(),
		preloginENCRYPTION: {encrypt},
		preloginINSTOPT:    append(instance, 0),
		preloginTHREADID:   threadID,
		preloginMARS:       {0}, // MARS disabled
		preloginTRACEID:    preloginTraceID(connID, activityID, 1),
	}

	return writePrelogin(packPrelogin, buf, fields)
}

// Dialer establishes the transport connection. The zero value of
// netDialer is used when none is supplied.
type Dialer interface {
	DialContext(ctx context.Context, network string, addr string) (net.Conn, error)
}

type netDialer struct {
	p msdsn.Config
}

func (d netDialer) DialContext(ctx context.Context, network string, addr string) (net.Conn, error) {
	nd := net.Dialer{
		Timeout:   d.p.DialTimeout,
		KeepAlive: d.p.KeepAlive,
	}
	return nd.DialContext(ctx, network, addr)
}

func dialConnection(ctx context.Context, dialer Dialer, p msdsn.Config) (net.Conn, error) {
	if dialer == nil {
		dialer = netDialer{p: p}
	}
	addr := net.JoinHostPort(p.Host, strconv.FormatUint(p.Port, 10))
	return dialer.DialContext(ctx, "tcp", addr)
}

// connect runs the full connection sequence: optional instance port
// discovery, TCP dial, PRELOGIN exchange, TLS upgrade when negotiated,
// LOGIN7 and the login reply stream.
func connect(ctx context.Context, logger ContextLogger, dialer Dialer, p msdsn.Config) (res *tdsSession, err error) {
	if p.Instance != "" && p.Port == 0 {
		p.Port, err = resolveInstancePort(ctx, p.Host, p.Instance)
		if err != nil {
			return nil, err
		}
	}
	if p.Port == 0 {
		p.Port = defaultServerPort
	}

	dialedConn, err := dialConnection(ctx, dialer, p)
	if err != nil {
		return nil, err
	}
	var toconn net.Conn = dialedConn
	if p.ConnTimeout != 0 {
		toconn = newTimeoutConn(dialedConn, p.ConnTimeout)
	}
	defer func() {
		if err != nil {
			toconn.Close()
		}
	}()

	packetSize := p.PacketSize
	if packetSize == 0 {
		packetSize = defaultPacketSize
	}
	// field limits of the LOGIN7 record
	if packetSize < 512 {
		packetSize = 512
	} else if packetSize > 32767 {
		packetSize = 32767
	}

	outbuf := newTdsBuffer(packetSize, toconn)
	sess := tdsSession{
		buf:        outbuf,
		logger:     optionalCtxLogger{ctxLogger: logger},
		logFlags:   uint64(p.LogFlags),
		connID:     uuid.New(),
		activityID: uuid.New(),
	}

	err = sendPrelogin(outbuf, p, sess.connID, sess.activityID)
	if err != nil {
		return nil, err
	}

	fields, err := readPrelogin(outbuf)
	if err != nil {
		return nil, err
	}

	verBytes, ok := fields[preloginVERSION]
	if !ok {
		return nil, fmt.Errorf("VERSION option not returned from server")
	}
	srvVersion, err := parsePreloginVersion(verBytes)
	if err != nil {
		return nil, err
	}
	if sess.logFlags&logDebug != 0 {
		sess.logger.Log(ctx, msdsn.LogDebug, fmt.Sprintf("server version: %v", srvVersion))
	}

	encryptBytes, ok := fields[preloginENCRYPTION]
	if !ok || len(encryptBytes) == 0 {
		return nil, fmt.Errorf("ENCRYPT option not returned from server")
	}
	encrypt := encryptBytes[0]
	if p.Encryption == msdsn.EncryptionRequired && (encrypt == encryptNotSup || encrypt == encryptOff) {
		return nil, ErrNoTLS
	}
	if encrypt == encryptOn || encrypt == encryptReq {
		if p.Encryption == msdsn.EncryptionDisabled {
			return nil, fmt.Errorf("server requires encryption but it was disabled in the connection string")
		}
		if err = setupTLS(outbuf, toconn, p); err != nil {
			return nil, err
		}
	}

	login := login{
		TDSVersion:    verTDS74,
		PacketSize:    uint32(outbuf.PackageSize()),
		ClientProgVer: driverMajorVersion<<24 | driverMinorVersion<<16 | driverBuildVersion,
		ClientPID:     uint32(os.Getpid()),
		OptionFlags1:  fUseDB | fSetLang,
		OptionFlags2:  fODBC,
		HostName:      p.Workstation,
		UserName:      p.User,
		Password:      p.Password,
		AppName:       p.AppName,
		ServerName:    p.Host,
		CtlIntName:    "go-mssqltds",
		Database:      p.Database,
	}
	if p.ReadOnlyIntent {
		login.TypeFlags |= fReadOnlyIntent
	}
	auth, authOk := getAuth(p.User, p.Password, p.ServerSPN, p.Workstation)
	if authOk {
		login.SSPI, err = auth.InitialBytes()
		if err != nil {
			return nil, err
		}
		login.OptionFlags2 |= fIntSecurity
		login.UserName = ""
		login.Password = ""
		defer auth.Free()
	}

	err = sendLogin(outbuf, &login)
	if err != nil {
		return nil, err
	}
	sess.pendingDone = 1

	// process login response
loginLoop:
	for {
		msg, err := sess.nextMessage()
		if err != nil {
			return nil, err
		}
		switch m := msg.(type) {
		case sspiMsg:
			if !authOk {
				return nil, streamErrorf("SSPI challenge returned but integrated authentication is not in use")
			}
			sspiPacket, err := auth.NextBytes(m)
			if err != nil {
				return nil, err
			}
			if len(sspiPacket) > 0 {
				outbuf.BeginPacket(packSSPIMessage, false)
				if _, err = outbuf.Write(sspiPacket); err != nil {
					return nil, err
				}
				if err = outbuf.FinishPacket(); err != nil {
					return nil, err
				}
			}
		case LoginAck:
			if sess.logFlags&logMessages != 0 {
				sess.logger.Log(ctx, msdsn.LogMessages, fmt.Sprintf("login acknowledged by %s", m.ProgName))
			}
		case Done:
			if m.Status&doneError != 0 {
				return nil, fmt.Errorf("login failed")
			}
			if m.Status&doneMore == 0 {
				break loginLoop
			}
		default:
			// the login reply may carry envchange-driven messages the
			// loop has no use for
		}
	}
	if sess.loginAck.TDSVersion == 0 {
		return nil, fmt.Errorf("no login acknowledgement returned from server")
	}

	return &sess, nil
}

// Packet Data Stream Headers
// http://msdn.microsoft.com/en-us/library/dd304953.aspx
type headerStruct struct {
	hdrtype uint16
	data    []byte
}

const (
	dataStmHdrQueryNotif    = 1
	dataStmHdrTransDescr    = 2
	dataStmHdrTraceActivity = 3
)

// Transaction descriptor header
// http://msdn.microsoft.com/en-us/library/dd340515.aspx
type transDescrHdr struct {
	transDescr        uint64 // transaction descriptor from ENVCHANGE
	outstandingReqCnt uint32 // outstanding request count
}

func (hdr transDescrHdr) pack() (res []byte) {
	res = make([]byte, 8+4)
	binary.LittleEndian.PutUint64(res, hdr.transDescr)
	binary.LittleEndian.PutUint32(res[8:], hdr.outstandingReqCnt)
	return res
}

func writeAllHeaders(w io.Writer, headers []headerStruct) (err error) {
	// Calculating total length.
	var totallen uint32 = 4
	for _, hdr := range headers {
		totallen += 4 + 2 + uint32(len(hdr.data))
	}
	// writing
	err = binary.Write(w, binary.LittleEndian, totallen)
	if err != nil {
		return err
	}
	for _, hdr := range headers {
		var headerlen uint32 = 4 + 2 + uint32(len(hdr.data))
		err = binary.Write(w, binary.LittleEndian, headerlen)
		if err != nil {
			return err
		}
		err = binary.Write(w, binary.LittleEndian, hdr.hdrtype)
		if err != nil {
			return err
		}
		_, err = w.Write(hdr.data)
		if err != nil {
			return err
		}
	}
	return nil
}

func sendSqlBatch72(buf *tdsBuffer, sqltext string, headers []headerStruct, resetSession bool) (err error) {
	buf.BeginPacket(packSQLBatch, resetSession)

	if err = writeAllHeaders(buf, headers); err != nil {
		return
	}

	_, err = buf.Write(str2ucs2(sqltext))
	if err != nil {
		return
	}
	return buf.FinishPacket()
}

// sendSQLBatch dispatches a batch on a drained stream, stamping the
// session's current transaction descriptor into the request headers.
func (sess *tdsSession) sendSQLBatch(sqltext string, resetSession bool) error {
	if err := sess.waitUntilReady(); err != nil {
		return err
	}
	if sess.logFlags&logSQL != 0 {
		sess.logger.Log(context.Background(), msdsn.LogSQL, sqltext)
	}
	headers := []headerStruct{{
		hdrtype: dataStmHdrTransDescr,
		data:    transDescrHdr{sess.tranid, 1}.pack(),
	}}
	// the reply owes a final DONE from the moment the request goes out
	sess.pendingDone++
	return sendSqlBatch72(sess.buf, sqltext, headers, resetSession)
}

// sendAttention asks the server to cancel the running request. The
// reply stream still has to be drained to its attention-flagged DONE.
func sendAttention(buf *tdsBuffer) error {
	buf.BeginPacket(packAttention, false)
	return buf.FinishPacket()
}

// Close tears down the transport. Any blocked read fails and the
// session cannot be used again.
func (sess *tdsSession) Close() error {
	return sess.buf.transport.Close()
}
