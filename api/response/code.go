package response

type ErrorCode int

const (
	OK ErrorCode = 0

	InvalidRequest ErrorCode = 40001
	Unauthorized   ErrorCode = 40101
	InvalidToken   ErrorCode = 40103

	PermissionDenied ErrorCode = 40301

	NotFound ErrorCode = 40401

	TooManyRequests ErrorCode = 42901

	InternalError ErrorCode = 50001
)
