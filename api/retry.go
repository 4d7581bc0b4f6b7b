package api

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RetryPolicy は一時的な失敗に対する再試行の方針です
type RetryPolicy struct {
	// MaxRetries は最初の試行を除いた再試行の最大回数です
	MaxRetries int
	// BaseDelay は1回目の再試行までの待機時間です
	BaseDelay time.Duration
	// MaxDelay は待機時間の上限です
	MaxDelay time.Duration
	// Multiplier は再試行ごとに待機時間へ掛ける倍率です
	Multiplier float64
	// RetryableStatuses は再試行対象のHTTPステータスです
	RetryableStatuses map[int]bool
}

// DefaultRetryableStatuses は429と全ての5xxを返します
func DefaultRetryableStatuses() map[int]bool {
	statuses := map[int]bool{http.StatusTooManyRequests: true}
	for code := 500; code < 600; code++ {
		statuses[code] = true
	}
	return statuses
}

// DefaultRetryPolicy はデフォルトの再試行方針を返します
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        5,
		BaseDelay:         time.Second,
		MaxDelay:          60 * time.Second,
		Multiplier:        2,
		RetryableStatuses: DefaultRetryableStatuses(),
	}
}

// ShouldRetryStatus はステータスコードが再試行対象かを判定します
func (p RetryPolicy) ShouldRetryStatus(code int) bool {
	return p.RetryableStatuses[code]
}

// Delay は retry 回目 (1始まり) の再試行前の待機時間を返します
func (p RetryPolicy) Delay(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	delay := float64(p.BaseDelay) * math.Pow(multiplier, float64(retry-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// retryAfter は Retry-After ヘッダー（秒数形式）を上限付きで解釈します
func (p RetryPolicy) retryAfter(header http.Header) (time.Duration, bool) {
	value := strings.TrimSpace(header.Get("Retry-After"))
	if value == "" {
		return 0, false
	}

	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0, false
	}

	delay := time.Duration(seconds) * time.Second
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay, true
}

// sleepContext はコンテキストのキャンセルを考慮して待機します
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
