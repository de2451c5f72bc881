package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeUnauthorized       ErrorCode = "COMMON_003"
	ErrCodeForbidden          ErrorCode = "COMMON_004"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeTooManyRequests    ErrorCode = "COMMON_007"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
)

// Aliases used by generic layers.
const (
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeUnauthorized = ErrCodeUnauthorized
	CodeNotFound     = ErrCodeNotFound
	CodeConflict     = ErrCodeConflict
	CodeOK           = ErrorCode("OK")
	CodeUnknown      = ErrorCode("UNKNOWN")
)

// Client & filing module error codes
const (
	ErrCodeClientNotFound    ErrorCode = "CLI_001"
	ErrCodeInvalidFilingType ErrorCode = "CLI_002"
	ErrCodeFilingNotAssigned ErrorCode = "CLI_003"
	ErrCodeClientPaused      ErrorCode = "CLI_004"
)

// Template module error codes
const (
	ErrCodeTemplateNotFound     ErrorCode = "TPL_001"
	ErrCodeTemplateTooManySteps ErrorCode = "TPL_002"
)

// Reminder queue module error codes
const (
	ErrCodeQueueEntryNotFound ErrorCode = "REM_001"
	ErrCodeQueueBuildFailed   ErrorCode = "REM_002"
	ErrCodeLockNotAcquired    ErrorCode = "REM_003"
	ErrCodeHolidaySource      ErrorCode = "REM_004"
	ErrCodeInvalidTransition  ErrorCode = "REM_005"
)

// Rollover module error codes
const (
	ErrCodeRolloverNoYearEnd   ErrorCode = "ROL_001"
	ErrCodeRolloverNotEligible ErrorCode = "ROL_002"
	ErrCodeRolloverRebuild     ErrorCode = "ROL_003"
)

// Credential module error codes
const (
	ErrCodeCredentialNotFound ErrorCode = "CRD_001"
	ErrCodeCredentialRefresh  ErrorCode = "CRD_002"
	ErrCodeRefreshInProgress  ErrorCode = "CRD_003"
)

// ErrorCodeHTTPStatus maps each error code to its HTTP status.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTooManyRequests:    http.StatusTooManyRequests,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeSerialization:      http.StatusBadRequest,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusBadGateway,

	ErrCodeClientNotFound:    http.StatusNotFound,
	ErrCodeInvalidFilingType: http.StatusBadRequest,
	ErrCodeFilingNotAssigned: http.StatusUnprocessableEntity,
	ErrCodeClientPaused:      http.StatusConflict,

	ErrCodeTemplateNotFound:     http.StatusNotFound,
	ErrCodeTemplateTooManySteps: http.StatusBadRequest,

	ErrCodeQueueEntryNotFound: http.StatusNotFound,
	ErrCodeQueueBuildFailed:   http.StatusInternalServerError,
	ErrCodeLockNotAcquired:    http.StatusConflict,
	ErrCodeHolidaySource:      http.StatusBadGateway,
	ErrCodeInvalidTransition:  http.StatusConflict,

	ErrCodeRolloverNoYearEnd:   http.StatusUnprocessableEntity,
	ErrCodeRolloverNotEligible: http.StatusConflict,
	ErrCodeRolloverRebuild:     http.StatusInternalServerError,

	ErrCodeCredentialNotFound: http.StatusNotFound,
	ErrCodeCredentialRefresh:  http.StatusBadGateway,
	ErrCodeRefreshInProgress:  http.StatusConflict,
}

// HTTPStatusForCode returns the HTTP status for code, defaulting to 500.
func HTTPStatusForCode(code ErrorCode) int {
	if s, ok := ErrorCodeHTTPStatus[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// ModuleForCode returns the module prefix of a code ("COMMON", "REM", ...).
func ModuleForCode(code ErrorCode) string {
	s := string(code)
	if i := strings.IndexByte(s, '_'); i > 0 {
		return s[:i]
	}
	return "UNKNOWN"
}
