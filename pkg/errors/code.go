package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 12000-12999: Problem errors
// 13000-13999: Submission & Judge errors
// 14000-14999: Queue & Dispatch errors
const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Database errors (10100-10199)
	DatabaseError     ErrorCode = 10100
	RecordNotFound    ErrorCode = 10101
	TransactionFailed ErrorCode = 10103

	// Cache errors (10200-10249)
	CacheError ErrorCode = 10200

	// Storage errors (10250-10299)
	StorageError ErrorCode = 10250

	// Validation errors (10300-10399)
	ValidationFailed ErrorCode = 10300

	// ========== Problem Errors (12000-12999) ==========

	ProblemNotFound ErrorCode = 12000

	// ========== Submission & Judge Errors (13000-13999) ==========

	SubmissionNotFound   ErrorCode = 13000
	SubmissionTooLarge   ErrorCode = 13001
	LanguageNotSupported ErrorCode = 13002
	SubmitTooFrequently  ErrorCode = 13003
	JudgeSystemError     ErrorCode = 13100
	SandboxError         ErrorCode = 13101
	SandboxTimeout       ErrorCode = 13102

	// ========== Queue & Dispatch Errors (14000-14999) ==========

	QueueError        ErrorCode = 14000
	QueueConnectError ErrorCode = 14001
	MessageInvalid    ErrorCode = 14002
)

var errorMessages = map[ErrorCode]string{
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	TooManyRequests:     "Too many requests",
	ServiceUnavailable:  "Service unavailable",
	Timeout:             "Operation timed out",

	DatabaseError:     "Database operation failed",
	RecordNotFound:    "Record not found",
	TransactionFailed: "Transaction failed",

	CacheError:   "Cache operation failed",
	StorageError: "Object storage operation failed",

	ValidationFailed: "Validation failed",

	ProblemNotFound: "Problem not found",

	SubmissionNotFound:   "Submission not found",
	SubmissionTooLarge:   "Submission source is too large",
	LanguageNotSupported: "Language is not supported",
	SubmitTooFrequently:  "Submitting too frequently",
	JudgeSystemError:     "Judge system error",
	SandboxError:         "Sandbox execution failed",
	SandboxTimeout:       "Sandbox execution timed out",

	QueueError:        "Message queue operation failed",
	QueueConnectError: "Message queue connection failed",
	MessageInvalid:    "Message payload is invalid",
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
		return 200
	case c == NotFound, c == RecordNotFound, c == SubmissionNotFound, c == ProblemNotFound:
		return 404
	case c == TooManyRequests, c == SubmitTooFrequently:
		return 429
	case c == ServiceUnavailable:
		return 503
	case c == InvalidParams, c == ValidationFailed, c == SubmissionTooLarge,
		c == LanguageNotSupported, c == MessageInvalid:
		return 400
	default:
		return 500
	}
}
