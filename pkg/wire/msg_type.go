// Package wire implements the PostgreSQL v3.0 wire protocol framing and the
// subset of message decoding pgscope's session state machine needs. The
// Decoder keeps its own copy of the bytes fed to it (the forwarder in
// pkg/proxy reuses its read buffer), and decoded frames expose borrowed
// views into that copy rather than allocating per message.
package wire

// MsgType is a PostgreSQL wire protocol message type byte.
type MsgType byte

// Client (frontend) message types relevant to the core.
const (
	MsgClientQuery     MsgType = 'Q'
	MsgClientParse     MsgType = 'P'
	MsgClientBind      MsgType = 'B'
	MsgClientExecute   MsgType = 'E'
	MsgClientDescribe  MsgType = 'D'
	MsgClientClose     MsgType = 'C'
	MsgClientSync      MsgType = 'S'
	MsgClientFlush     MsgType = 'H'
	MsgClientTerminate MsgType = 'X'
	MsgClientCopyData  MsgType = 'd'
	MsgClientCopyDone  MsgType = 'c'
	MsgClientCopyFail  MsgType = 'f'
	MsgClientPassword  MsgType = 'p'
)

// Server (backend) message types relevant to the core.
const (
	MsgServerCommandComplete    MsgType = 'C'
	MsgServerEmptyQuery         MsgType = 'I'
	MsgServerErrorResponse      MsgType = 'E'
	MsgServerReadyForQuery      MsgType = 'Z'
	MsgServerParameterStatus    MsgType = 'S'
	MsgServerAuthentication     MsgType = 'R'
	MsgServerBackendKeyData     MsgType = 'K'
	MsgServerRowDescription     MsgType = 'T'
	MsgServerDataRow            MsgType = 'D'
	MsgServerNoticeResponse     MsgType = 'N'
	MsgServerParseComplete      MsgType = '1'
	MsgServerBindComplete       MsgType = '2'
	MsgServerPortalSuspended    MsgType = 's'
	MsgServerCopyData           MsgType = 'd'
	MsgServerCopyDone           MsgType = 'c'
	MsgServerCopyInResponse     MsgType = 'G'
	MsgServerCopyOutResponse    MsgType = 'H'
	MsgServerCopyBothResponse   MsgType = 'W'
	MsgServerNotificationResponse MsgType = 'A'
)

// CloseType identifies whether a Close ('C') message targets a prepared
// statement or a portal.
type CloseType byte

const (
	CloseStatement CloseType = 'S'
	ClosePortal    CloseType = 'P'
)
