package errors

func (d Definition) Error() string {
	return d.Message
}

// Definition 表示业务错误码及默认信息。
type Definition struct {
	Code    string
	Message string
}

// 认证相关错误。
var (
	Unauthorized  = Definition{Code: "UNAUTHORIZED", Message: "Unauthorized"}
	InvalidUserID = Definition{Code: "INVALID_USER_ID", Message: "Invalid user ID format"}
)

// 打卡提交模块错误。
var (
	CheckInRejected    = Definition{Code: "CHECK_IN_REJECTED", Message: "Check-in rejected by backend"}
	CheckInInvalid     = Definition{Code: "CHECK_IN_INVALID", Message: "Check-in payload invalid"}
	QRSessionRequired  = Definition{Code: "QR_SESSION_REQUIRED", Message: "QR check-in requires a session ID"}
	GeoRequired        = Definition{Code: "GEO_REQUIRED", Message: "GPS check-in requires coordinates"}
	PersistenceFailure = Definition{Code: "PERSISTENCE_FAILURE", Message: "Local durable write failed, check-in may be lost"}
)

// 同步模块错误。
var (
	SyncInProgress  = Definition{Code: "SYNC_IN_PROGRESS", Message: "A sync pass is already running"}
	InvalidCursor   = Definition{Code: "INVALID_CURSOR", Message: "Pagination cursor is not valid"}
	InvalidPageSize = Definition{Code: "INVALID_PAGE_SIZE", Message: "Page size out of range"}
)

// token 相关错误（pkg/token 使用）。
var (
	ErrTokenGeneratorNotInitialized = Definition{Code: "TOKEN_NOT_INITIALIZED", Message: "Token generator not initialized"}
	ErrUnexpectedSigningMethod      = Definition{Code: "TOKEN_BAD_ALG", Message: "Unexpected token signing method"}
	ErrInvalidToken                 = Definition{Code: "TOKEN_INVALID", Message: "Token invalid"}
	ErrInvalidTokenClaims           = Definition{Code: "TOKEN_BAD_CLAIMS", Message: "Token claims invalid"}
	ErrInvalidTokenType             = Definition{Code: "TOKEN_BAD_TYPE", Message: "Token type invalid"}
	ErrUserIDNotFound               = Definition{Code: "TOKEN_NO_UID", Message: "User ID missing from token"}
)

// Lookup 提供错误码查询能力。
var Lookup = map[string]Definition{
	Unauthorized.Code:       Unauthorized,
	InvalidUserID.Code:      InvalidUserID,
	CheckInRejected.Code:    CheckInRejected,
	CheckInInvalid.Code:     CheckInInvalid,
	QRSessionRequired.Code:  QRSessionRequired,
	GeoRequired.Code:        GeoRequired,
	PersistenceFailure.Code: PersistenceFailure,
	SyncInProgress.Code:     SyncInProgress,
	InvalidCursor.Code:      InvalidCursor,
	InvalidPageSize.Code:    InvalidPageSize,
}

// Get 根据错误码返回 Definition，若不存在则返回空 Definition。
func Get(code string) Definition {
	if def, ok := Lookup[code]; ok {
		return def
	}
	return Definition{Code: code, Message: "Unexpected error"}
}
