package mssql

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sqlpage/mssqltds/msdsn"
)

type token byte

// token ids
const (
	tokenReturnStatus token = 121 // 0x79
	tokenColMetadata  token = 129 // 0x81
	tokenOrder        token = 169 // 0xA9
	tokenError        token = 170 // 0xAA
	tokenInfo         token = 171 // 0xAB
	tokenReturnValue  token = 0xAC
	tokenLoginAck     token = 173 // 0xAD
	tokenRow          token = 209 // 0xD1
	tokenNbcRow       token = 210 // 0xD2
	tokenEnvChange    token = 227 // 0xE3
	tokenSSPI         token = 237 // 0xED
	tokenDone         token = 253 // 0xFD
	tokenDoneProc     token = 254
	tokenDoneInProc   token = 255
)

// done flags
// https://msdn.microsoft.com/en-us/library/dd340421.aspx
const (
	doneFinal    = 0
	doneMore     = 1
	doneError    = 2
	doneInxact   = 4
	doneCount    = 0x10
	doneAttn     = 0x20
	doneSrvError = 0x100
)

var doneFlags2str = map[uint16]string{
	doneFinal:    "final",
	doneMore:     "more",
	doneError:    "error",
	doneInxact:   "inxact",
	doneCount:    "count",
	doneAttn:     "attn",
	doneSrvError: "srverror",
}

func doneFlags2Str(flags uint16) string {
	strs := make([]string, 0, len(doneFlags2str))
	for flag, tag := range doneFlags2str {
		if flags&flag != 0 {
			strs = append(strs, tag)
		}
	}
	return strings.Join(strs, "|")
}

// ENVCHANGE types
// http://msdn.microsoft.com/en-us/library/dd303449.aspx
const (
	envTypDatabase     = 1
	envTypLanguage     = 2
	envTypCharset      = 3
	envTypPacketSize   = 4
	envTypBeginTran    = 8
	envTypCommitTran   = 9
	envTypRollbackTran = 10
)

// interface for all messages surfaced by nextMessage
type tokenStruct interface{}

type Done struct {
	Status   uint16
	CurCmd   uint16
	RowCount uint64
}

// DoneProc reports completion of a stored procedure, as opposed to the
// Done closing ad-hoc batch results.
type DoneProc Done

type DoneInProc Done

// ENVCHANGE stream
// http://msdn.microsoft.com/en-us/library/dd303449.aspx
func processEnvChg(sess *tdsSession) {
	size := sess.buf.uint16()
	r := &io.LimitedReader{R: sess.buf, N: int64(size)}
	for {
		var err error
		var envtype uint8
		err = binary.Read(r, binary.LittleEndian, &envtype)
		if err == io.EOF {
			return
		}
		if err != nil {
			badStreamPanic(err)
		}
		switch envtype {
		case envTypDatabase:
			sess.database, err = readBVarChar(r)
			if err != nil {
				badStreamPanic(err)
			}
			_, err = readBVarChar(r)
			if err != nil {
				badStreamPanic(err)
			}
		case envTypLanguage, envTypCharset:
			// new value
			if _, err = readBVarChar(r); err != nil {
				badStreamPanic(err)
			}
			// old value
			if _, err = readBVarChar(r); err != nil {
				badStreamPanic(err)
			}
		case envTypPacketSize:
			packetsize, err := readBVarChar(r)
			if err != nil {
				badStreamPanic(err)
			}
			_, err = readBVarChar(r)
			if err != nil {
				badStreamPanic(err)
			}
			packetsizei, err := strconv.Atoi(packetsize)
			if err != nil {
				badStreamPanicf("invalid packet size value returned from server (%s): %s", packetsize, err.Error())
			}
			// Ensure the packet size stays within bounds the buffers
			// were allocated for.
			if packetsizei > 32767 {
				packetsizei = 32767
			}
			if packetsizei < 512 {
				packetsizei = 512
			}
			sess.buf.ResizeBuffer(packetsizei)
		case envTypBeginTran:
			tranid, err := readBVarByte(r)
			if err != nil {
				badStreamPanic(err)
			}
			if len(tranid) != 8 {
				badStreamPanicf("invalid size of transaction identifier: %d", len(tranid))
			}
			sess.tranid = binary.LittleEndian.Uint64(tranid)
			if sess.logFlags&logTransaction != 0 {
				sess.logger.Log(context.Background(), msdsn.LogTransaction, fmt.Sprintf("BEGIN TRANSACTION %x", sess.tranid))
			}
			if _, err = readBVarByte(r); err != nil {
				badStreamPanic(err)
			}
		case envTypCommitTran, envTypRollbackTran:
			if _, err = readBVarByte(r); err != nil {
				badStreamPanic(err)
			}
			if _, err = readBVarByte(r); err != nil {
				badStreamPanic(err)
			}
			if sess.logFlags&logTransaction != 0 {
				if envtype == envTypCommitTran {
					sess.logger.Log(context.Background(), msdsn.LogTransaction, fmt.Sprintf("COMMIT TRANSACTION %x", sess.tranid))
				} else {
					sess.logger.Log(context.Background(), msdsn.LogTransaction, fmt.Sprintf("ROLLBACK TRANSACTION %x", sess.tranid))
				}
			}
			sess.tranid = 0
		default:
			// ignore rest of records because we don't know how to skip them
			if _, err := io.Copy(io.Discard, r); err != nil {
				badStreamPanic(err)
			}
			return
		}
	}
}

type ReturnStatus int32

// http://msdn.microsoft.com/en-us/library/dd358180.aspx
func parseReturnStatus(r *tdsBuffer) ReturnStatus {
	return ReturnStatus(r.int32())
}

func parseDone(r *tdsBuffer) (res Done) {
	res.Status = r.uint16()
	res.CurCmd = r.uint16()
	res.RowCount = r.uint64()
	return res
}

func parseDoneInProc(r *tdsBuffer) (res DoneInProc) {
	res.Status = r.uint16()
	res.CurCmd = r.uint16()
	res.RowCount = r.uint64()
	return res
}

type sspiMsg []byte

func parseSSPIMsg(r *tdsBuffer) sspiMsg {
	size := r.uint16()
	buf := make([]byte, size)
	r.ReadFull(buf)
	return sspiMsg(buf)
}

type LoginAck struct {
	Interface  uint8
	TDSVersion uint32
	ProgName   string
	ProgVer    uint32
}

func parseLoginAck(r *tdsBuffer) LoginAck {
	size := r.uint16()
	buf := make([]byte, size)
	r.ReadFull(buf)
	var res LoginAck
	res.Interface = buf[0]
	res.TDSVersion = binary.BigEndian.Uint32(buf[1:])
	prognamelen := buf[1+4]
	var err error
	if res.ProgName, err = ucs22str(buf[1+4+1 : 1+4+1+int(prognamelen)*2]); err != nil {
		badStreamPanic(err)
	}
	res.ProgVer = binary.BigEndian.Uint32(buf[size-4:])
	return res
}

type columnStruct struct {
	UserType uint32
	Flags    uint16
	ColName  string
	ti       typeInfo
}

// http://msdn.microsoft.com/en-us/library/dd357363.aspx
func parseColMetadata72(r *tdsBuffer) (columns []columnStruct) {
	count := r.uint16()
	if count == 0xffff {
		// no metadata is sent
		return nil
	}
	columns = make([]columnStruct, count)
	for i := range columns {
		column := &columns[i]
		column.UserType = r.uint32()
		column.Flags = r.uint16()

		// parsing TYPE_INFO structure
		column.ti = readTypeInfo(r)
		column.ColName = r.BVarChar()
	}
	return columns
}

// Row carries the undecoded column values of a single row together
// with the column snapshot they were read against. A nil value means
// NULL.
type Row struct {
	Columns []columnStruct
	Values  [][]byte
}

// http://msdn.microsoft.com/en-us/library/dd357254.aspx
func parseRow(r *tdsBuffer, columns []columnStruct) [][]byte {
	values := make([][]byte, len(columns))
	for i := range columns {
		column := &columns[i]
		values[i] = column.ti.Reader(&column.ti, r)
	}
	return values
}

// http://msdn.microsoft.com/en-us/library/dd304783.aspx
func parseNbcRow(r *tdsBuffer, columns []columnStruct) [][]byte {
	bitlen := (len(columns) + 7) / 8
	pres := make([]byte, bitlen)
	r.ReadFull(pres)
	values := make([][]byte, len(columns))
	for i := range columns {
		if pres[i/8]&(1<<(uint(i)%8)) != 0 {
			// null bit is set
			continue
		}
		column := &columns[i]
		values[i] = column.ti.Reader(&column.ti, r)
	}
	return values
}

// http://msdn.microsoft.com/en-us/library/dd304156.aspx
func parseError72(r *tdsBuffer) (res Error) {
	length := r.uint16()
	_ = length // ignore length, it is not needed to parse the token
	res.Number = r.int32()
	res.State = r.byte()
	res.Class = r.byte()
	res.Message = r.UsVarChar()
	res.ServerName = r.BVarChar()
	res.ProcName = r.BVarChar()
	res.LineNo = r.int32()
	return
}

// http://msdn.microsoft.com/en-us/library/dd304156.aspx
func parseInfo(r *tdsBuffer) (res Error) {
	length := r.uint16()
	_ = length
	res.Number = r.int32()
	res.State = r.byte()
	res.Class = r.byte()
	res.Message = r.UsVarChar()
	res.ServerName = r.BVarChar()
	res.ProcName = r.BVarChar()
	res.LineNo = r.int32()
	return
}

type Order struct {
	ColIds []uint16
}

// https://msdn.microsoft.com/en-us/library/dd303317.aspx
func parseOrder(r *tdsBuffer) (res Order) {
	len := int(r.uint16())
	for i := 0; i < len/2; i++ {
		res.ColIds = append(res.ColIds, r.uint16())
	}
	return res
}

// ReturnValue carries an output parameter sent back by the server. The
// value bytes are left undecoded, aligned with the embedded type
// descriptor.
type ReturnValue struct {
	ParamOrdinal uint16
	ParamName    string
	Status       uint8
	UserType     uint32
	Flags        uint16
	Value        []byte
}

// https://msdn.microsoft.com/en-us/library/dd303881.aspx
func parseReturnValue(r *tdsBuffer) (rv ReturnValue) {
	rv.ParamOrdinal = r.uint16()
	rv.ParamName = r.BVarChar()
	rv.Status = r.byte()
	rv.UserType = r.uint32()
	rv.Flags = r.uint16()
	ti := readTypeInfo(r)
	rv.Value = ti.Reader(&ti, r)
	return
}

// nextMessage reads tokens off the reply stream until one that is
// surfaced to the caller comes up. Bookkeeping tokens (ENVCHANGE,
// INFO, COLMETADATA) are consumed in place. A server ERROR token is
// returned as an Error value; the stream stays usable and the
// trailing DONE still has to be read. Any malformed input surfaces as
// a StreamError and poisons the connection.
func (sess *tdsSession) nextMessage() (res tokenStruct, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			recErr, ok := rec.(error)
			if !ok {
				panic(rec)
			}
			if sess.logFlags&logErrors != 0 {
				sess.logger.Log(context.Background(), msdsn.LogErrors, fmt.Sprintf("intercepted panic: %v", recErr))
			}
			res, err = nil, recErr
		}
	}()

	if !sess.responseStarted {
		packetType, berr := sess.buf.BeginRead()
		if berr != nil {
			return nil, StreamError{InnerError: berr}
		}
		if packetType != packReply {
			return nil, streamErrorf("invalid response packet type, expected REPLY, actual: %d", packetType)
		}
		sess.responseStarted = true
	}

	for {
		tok := token(sess.buf.byte())
		if sess.logFlags&logDebug != 0 {
			sess.logger.Log(context.Background(), msdsn.LogDebug, fmt.Sprintf("got token %v", tok))
		}
		switch tok {
		case tokenReturnStatus:
			return parseReturnStatus(sess.buf), nil
		case tokenOrder:
			return parseOrder(sess.buf), nil
		case tokenLoginAck:
			sess.loginAck = parseLoginAck(sess.buf)
			return sess.loginAck, nil
		case tokenSSPI:
			return parseSSPIMsg(sess.buf), nil
		case tokenReturnValue:
			return parseReturnValue(sess.buf), nil
		case tokenDoneInProc:
			done := parseDoneInProc(sess.buf)
			if sess.logFlags&logRows != 0 && done.Status&doneCount != 0 {
				sess.logger.Log(context.Background(), msdsn.LogRows, fmt.Sprintf("(%d rows affected)", done.RowCount))
			}
			return done, nil
		case tokenDone, tokenDoneProc:
			done := parseDone(sess.buf)
			if sess.logFlags&logDebug != 0 {
				sess.logger.Log(context.Background(), msdsn.LogDebug, fmt.Sprintf("got DONE or DONEPROC status=%d", done.Status))
			}
			if sess.logFlags&logRows != 0 && done.Status&doneCount != 0 {
				sess.logger.Log(context.Background(), msdsn.LogRows, fmt.Sprintf("(%d rows affected)", done.RowCount))
			}
			if done.Status&doneMore == 0 {
				sess.responseStarted = false
				if sess.pendingDone > 0 {
					sess.pendingDone--
				}
			}
			if tok == tokenDoneProc {
				return DoneProc(done), nil
			}
			return done, nil
		case tokenColMetadata:
			sess.columns = parseColMetadata72(sess.buf)
		case tokenRow:
			if sess.columns == nil {
				return nil, streamErrorf("row encountered without preceding column metadata")
			}
			return Row{Columns: sess.columns, Values: parseRow(sess.buf, sess.columns)}, nil
		case tokenNbcRow:
			if sess.columns == nil {
				return nil, streamErrorf("row encountered without preceding column metadata")
			}
			return Row{Columns: sess.columns, Values: parseNbcRow(sess.buf, sess.columns)}, nil
		case tokenEnvChange:
			processEnvChg(sess)
		case tokenError:
			srvErr := parseError72(sess.buf)
			if sess.logFlags&logErrors != 0 {
				sess.logger.Log(context.Background(), msdsn.LogErrors, srvErr.Message)
			}
			return nil, srvErr
		case tokenInfo:
			info := parseInfo(sess.buf)
			if sess.logFlags&logMessages != 0 {
				sess.logger.Log(context.Background(), msdsn.LogMessages, info.Message)
			}
		default:
			return nil, streamErrorf("unknown token type returned: %v", tok)
		}
	}
}

// waitUntilReady discards replies left over from requests whose
// results the caller abandoned, so a new request can go out on a clean
// stream. Server errors inside the drained replies are dropped.
func (sess *tdsSession) waitUntilReady() error {
	for sess.pendingDone > 0 {
		_, err := sess.nextMessage()
		if err != nil {
			if _, ok := err.(Error); ok {
				continue
			}
			return err
		}
	}
	return nil
}
