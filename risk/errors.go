package risk

import "errors"

// 风控拒绝的哨兵错误，由各 guard 的 Check 包装返回。
var (
	ErrTooFrequent = errors.New("too frequent trade")
	ErrDailyExceed = errors.New("daily budget exceed")
)
