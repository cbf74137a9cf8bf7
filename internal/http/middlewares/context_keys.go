package middlewares

// gin context keys
const (
	CtxUserID    = "auth.userID"
	CtxRequestID = "request_id"
)
