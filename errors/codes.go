package errors

// ErrorCode is the machine-readable classification carried by every AppError.
type ErrorCode int32

const (
	ErrorCode_UNKNOWN ErrorCode = iota
	ErrorCode_INTERNAL
	ErrorCode_INVALID_ARGUMENT
	ErrorCode_NOT_FOUND
	ErrorCode_ALREADY_EXISTS
	ErrorCode_HTTP_OK

	// Payload and analysis errors
	ErrorCode_INVALID_PAYLOAD
	ErrorCode_MALFORMED_PAYLOAD
	ErrorCode_NO_SEGMENTS
	ErrorCode_ANALYSIS_NOT_FOUND
	ErrorCode_ANALYSIS_FAILED
	ErrorCode_REPORT_NOT_READY
	ErrorCode_PROCESSING_FAILED
	ErrorCode_MISSING_AUDIO

	// Integration errors
	ErrorCode_HUME_FAILED
	ErrorCode_HUME_JOB_FAILED
	ErrorCode_INTEGRATION_STORAGE_FAILED
	ErrorCode_INTEGRATION_CACHE_FAILED
	ErrorCode_INTEGRATION_EXTERNAL_API_FAILED

	// Database errors
	ErrorCode_DB_CONNECTION_FAILED
	ErrorCode_DB_QUERY_FAILED
	ErrorCode_DB_TRANSACTION_FAILED
	ErrorCode_DB_CONSTRAINT_VIOLATION
)

var errorCodeNames = map[ErrorCode]string{
	ErrorCode_UNKNOWN:          "UNKNOWN",
	ErrorCode_INTERNAL:         "INTERNAL",
	ErrorCode_INVALID_ARGUMENT: "INVALID_ARGUMENT",
	ErrorCode_NOT_FOUND:        "NOT_FOUND",
	ErrorCode_ALREADY_EXISTS:   "ALREADY_EXISTS",
	ErrorCode_HTTP_OK:          "OK",

	ErrorCode_INVALID_PAYLOAD:   "INVALID_PAYLOAD",
	ErrorCode_MALFORMED_PAYLOAD: "MALFORMED_PAYLOAD",
	ErrorCode_NO_SEGMENTS:       "NO_SEGMENTS",
	ErrorCode_ANALYSIS_NOT_FOUND: "ANALYSIS_NOT_FOUND",
	ErrorCode_ANALYSIS_FAILED:    "ANALYSIS_FAILED",
	ErrorCode_REPORT_NOT_READY:   "REPORT_NOT_READY",
	ErrorCode_PROCESSING_FAILED:  "PROCESSING_FAILED",
	ErrorCode_MISSING_AUDIO:      "MISSING_AUDIO",

	ErrorCode_HUME_FAILED:                     "HUME_FAILED",
	ErrorCode_HUME_JOB_FAILED:                 "HUME_JOB_FAILED",
	ErrorCode_INTEGRATION_STORAGE_FAILED:      "INTEGRATION_STORAGE_FAILED",
	ErrorCode_INTEGRATION_CACHE_FAILED:        "INTEGRATION_CACHE_FAILED",
	ErrorCode_INTEGRATION_EXTERNAL_API_FAILED: "INTEGRATION_EXTERNAL_API_FAILED",

	ErrorCode_DB_CONNECTION_FAILED:    "DB_CONNECTION_FAILED",
	ErrorCode_DB_QUERY_FAILED:         "DB_QUERY_FAILED",
	ErrorCode_DB_TRANSACTION_FAILED:   "DB_TRANSACTION_FAILED",
	ErrorCode_DB_CONSTRAINT_VIOLATION: "DB_CONSTRAINT_VIOLATION",
}

func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}
