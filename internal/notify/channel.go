package notify

import (
	"context"
	"fmt"
	"time"
)

// Channel — один транспорт доставки оповещений.
// Send обязан уважать ctx: диспетчер режет каждую доставку таймаутом.
type Channel interface {
	Name() string
	Send(ctx context.Context, subject, body string) error
}

// ThrottleError возвращается каналом, когда удаленная сторона попросила
// подождать (например, прислала Retry-After). Ретраер использует его
// вместо стандартного бэкоффа.
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error { return e.Cause }
