package service

import "errors"

// 业务层通用错误，handler 可根据错误类型映射到合适的 HTTP 状态码。
var (
	ErrMissingCredential      = errors.New("missing credential")
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrStorageUnavailable     = errors.New("storage unavailable")
	ErrIdentityUnavailable    = errors.New("identity provider unavailable")
)
