package errs

// 通用错误码
const (
	ServerInternalError = 500
	ArgsError           = 1001
	RecordNotFoundError = 1002
)

// 连接/会话
const (
	ConnNotFoundError    = 2001
	QueueFullError       = 2002
	UnauthenticatedError = 2003
	TokenInvalidError    = 2004
	DecodeFrameError     = 2005
	ShuttingDownError    = 2006
)

// 存储
const (
	PersistError     = 3001
	GroupLookupError = 3002
	PublishError     = 3003
)

var (
	ErrInternalServer = NewCodeError(ServerInternalError, "ServerInternalError")
	ErrArgs           = NewCodeError(ArgsError, "ArgsError")
	ErrRecordNotFound = NewCodeError(RecordNotFoundError, "RecordNotFoundError")

	ErrConnNotFound    = NewCodeError(ConnNotFoundError, "ConnNotFound")
	ErrQueueFull       = NewCodeError(QueueFullError, "SendQueueFull")
	ErrUnauthenticated = NewCodeError(UnauthenticatedError, "Unauthenticated")
	ErrTokenInvalid    = NewCodeError(TokenInvalidError, "TokenInvalid")
	ErrDecode          = NewCodeError(DecodeFrameError, "DecodeFrameError")
	ErrShuttingDown    = NewCodeError(ShuttingDownError, "ShuttingDown")

	ErrPersistFailed = NewCodeError(PersistError, "PersistFailed")
	ErrGroupLookup   = NewCodeError(GroupLookupError, "GroupLookupFailed")
	ErrPublish       = NewCodeError(PublishError, "PublishFailed")
)
