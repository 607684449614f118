package httpclient

import (
	"net/http"
	"time"
)

// Cancel, returned from any callback, converts to a UserCanceled error
// and is immediately fatal (spec §5).
type Cancel struct{ Reason string }

func (c Cancel) Error() string { return "httpclient: canceled: " + c.Reason }

// Callbacks are typed request-side hooks (component C11). Every hook
// is optional; a nil func is simply not invoked. Ordering within one
// attempt: BeforeSign, AfterSign, ReceiveStatus, ReceiveHeader*, then
// Success or Error, then optionally BeforeBackoff/AfterBackoff (spec §5).
// UploadingProgress is carried here but Executor never invokes it: no
// progress is reported while a request body is sent.
type Callbacks struct {
	BeforeSign        func(req *http.Request) error
	AfterSign         func(req *http.Request) error
	UploadingProgress func(uploaded, total int64)
	ReceiveStatus     func(statusCode int) error
	ReceiveHeader     func(key, value string) error
	Success           func(resp *http.Response)
	Error             func(err error)
	BeforeBackoff     func(attempt int, delay time.Duration)
	AfterBackoff      func(attempt int, delay time.Duration)
	// OnRequestLog receives a structured summary of every physical
	// attempt, mirroring the original implementation's dedicated
	// upload logger (spec §13.6).
	OnRequestLog func(method, url string, statusCode int, duration time.Duration, reqid string)
}

func (c Callbacks) fireBeforeSign(req *http.Request) error {
	if c.BeforeSign == nil {
		return nil
	}
	return c.BeforeSign(req)
}

func (c Callbacks) fireAfterSign(req *http.Request) error {
	if c.AfterSign == nil {
		return nil
	}
	return c.AfterSign(req)
}

func (c Callbacks) fireReceiveStatus(code int) error {
	if c.ReceiveStatus == nil {
		return nil
	}
	return c.ReceiveStatus(code)
}

func (c Callbacks) fireReceiveHeaders(h http.Header) error {
	if c.ReceiveHeader == nil {
		return nil
	}
	for k, vs := range h {
		for _, v := range vs {
			if err := c.ReceiveHeader(k, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c Callbacks) fireSuccess(resp *http.Response) {
	if c.Success != nil {
		c.Success(resp)
	}
}

func (c Callbacks) fireError(err error) {
	if c.Error != nil {
		c.Error(err)
	}
}

func (c Callbacks) fireBeforeBackoff(attempt int, d time.Duration) {
	if c.BeforeBackoff != nil {
		c.BeforeBackoff(attempt, d)
	}
}

func (c Callbacks) fireAfterBackoff(attempt int, d time.Duration) {
	if c.AfterBackoff != nil {
		c.AfterBackoff(attempt, d)
	}
}

func (c Callbacks) fireRequestLog(method, url string, statusCode int, duration time.Duration, reqid string) {
	if c.OnRequestLog != nil {
		c.OnRequestLog(method, url, statusCode, duration, reqid)
	}
}
