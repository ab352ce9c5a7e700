package errors

import "net/http"

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Identity errors
// 12000-12999: Problem & test case errors
// 13000-13999: Submission errors
// 14000-14999: Evaluation & sandbox errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008
	RequestCanceled     ErrorCode = 10009

	// Database errors (10100-10199)
	DatabaseError       ErrorCode = 10100
	RecordNotFound      ErrorCode = 10101
	RecordAlreadyExists ErrorCode = 10102
	TransactionFailed   ErrorCode = 10103

	// Cache errors (10200-10299)
	CacheError     ErrorCode = 10200
	CacheMiss      ErrorCode = 10201
	CacheSetFailed ErrorCode = 10202

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// Infrastructure errors (10400-10499)
	MessageQueueError ErrorCode = 10400
	StorageError      ErrorCode = 10401

	// ========== Identity Errors (11000-11999) ==========

	TokenExpired    ErrorCode = 11003
	TokenInvalid    ErrorCode = 11004
	IdentityMissing ErrorCode = 11005

	// ========== Problem Errors (12000-12999) ==========

	ProblemNotFound ErrorCode = 12000

	TestCaseNotFound ErrorCode = 12100
	TestCaseInvalid  ErrorCode = 12102

	// ========== Submission Errors (13000-13999) ==========

	SubmissionNotFound     ErrorCode = 13000
	SubmissionCreateFailed ErrorCode = 13001
	CodeTooLarge           ErrorCode = 13002
	LanguageNotSupported   ErrorCode = 13003
	SubmitTooFrequently    ErrorCode = 13004
	SubmissionInProgress   ErrorCode = 13005

	// ========== Evaluation & Sandbox Errors (14000-14999) ==========

	EvaluationSystemError ErrorCode = 14000
	EvaluationQueueFull   ErrorCode = 14001
	SandboxUnavailable    ErrorCode = 14002
	CompilationError      ErrorCode = 14100
	EntryPointNotFound    ErrorCode = 14101
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	Forbidden:           "Access forbidden",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",
	RequestCanceled:     "Request canceled",

	DatabaseError:       "Database operation failed",
	RecordNotFound:      "Record not found in database",
	RecordAlreadyExists: "Record already exists",
	TransactionFailed:   "Database transaction failed",

	CacheError:     "Cache operation failed",
	CacheMiss:      "Cache miss",
	CacheSetFailed: "Failed to set cache",

	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	MessageQueueError: "Message queue operation failed",
	StorageError:      "Object storage operation failed",

	TokenExpired:    "Token has expired",
	TokenInvalid:    "Invalid token",
	IdentityMissing: "Caller identity is required",

	ProblemNotFound:  "Problem not found",
	TestCaseNotFound: "Test case not found",
	TestCaseInvalid:  "Invalid test case format",

	SubmissionNotFound:     "Submission not found",
	SubmissionCreateFailed: "Failed to create submission",
	CodeTooLarge:           "Code is too large",
	LanguageNotSupported:   "Programming language not supported",
	SubmitTooFrequently:    "Submitting too frequently, please wait",
	SubmissionInProgress:   "A submission with this idempotency key is still being evaluated",

	EvaluationSystemError: "Evaluation system error",
	EvaluationQueueFull:   "Evaluation queue is full, please try again later",
	SandboxUnavailable:    "Sandbox is unavailable",
	CompilationError:      "Compilation error",
	EntryPointNotFound:    "No entry point found",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return http.StatusOK
	case c == Unauthorized, c == TokenExpired, c == TokenInvalid, c == IdentityMissing:
		return http.StatusUnauthorized
	case c == Forbidden:
		return http.StatusForbidden
	case c == NotFound, c == RecordNotFound, c == ProblemNotFound, c == TestCaseNotFound, c == SubmissionNotFound:
		return http.StatusNotFound
	case c == TooManyRequests, c == SubmitTooFrequently:
		return http.StatusTooManyRequests
	case c == SubmissionInProgress, c == RecordAlreadyExists:
		return http.StatusConflict
	case c == ServiceUnavailable, c == EvaluationQueueFull, c == SandboxUnavailable:
		return http.StatusServiceUnavailable
	case c == Timeout:
		return http.StatusGatewayTimeout
	case c == RequestCanceled:
		return 499
	case c >= 10300 && c < 10400: // Validation errors
		return http.StatusBadRequest
	case c == InvalidParams, c == CodeTooLarge, c == LanguageNotSupported, c == TestCaseInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
