package sender

import "fmt"

type httpStatusError struct {
	op         string
	statusCode int
	body       string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("%s: status %d, body %s", e.op, e.statusCode, e.body)
}

// 5xx 和 429 值得重试，其余状态码说明对端拒绝了这条消息
func (e *httpStatusError) retryable() bool {
	return e.statusCode >= 500 || e.statusCode == 429
}
