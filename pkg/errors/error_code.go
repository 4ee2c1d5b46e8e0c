package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeMissingField         ErrorCode = 102
	ErrCodeInvalidDateRange     ErrorCode = 103
	ErrCodeEmptyStrategyCode    ErrorCode = 104

	// Transport errors (200-299)
	ErrCodeTransport       ErrorCode = 200
	ErrCodeBackendRejected ErrorCode = 201
	ErrCodeMalformedReply  ErrorCode = 202

	// Strategy errors (300-399)
	ErrCodeStrategyNotFound   ErrorCode = 300
	ErrCodeStrategySaveFailed ErrorCode = 301
	ErrCodeStrategyLoadFailed ErrorCode = 302

	// Backtest errors (400-499)
	ErrCodeBacktestStartFailed  ErrorCode = 400
	ErrCodeBacktestFailed       ErrorCode = 401
	ErrCodeBacktestNotTracked   ErrorCode = 402
	ErrCodeResultRefreshFailed  ErrorCode = 403
	ErrCodeBacktestDeleteFailed ErrorCode = 404

	// Workspace errors (500-599)
	ErrCodeTabNotFound    ErrorCode = 500
	ErrCodeTabNotClosable ErrorCode = 501
	ErrCodeWorkspaceDown  ErrorCode = 502
)
