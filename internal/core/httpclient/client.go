package httpclient

import (
	"net/http"
	"time"

	"order-tracker/internal/core/logger"

	"go.uber.org/zap"
)

// loggingTransport wraps a RoundTripper and logs every outbound request
// with its outcome and latency.
type loggingTransport struct {
	next http.RoundTripper
	log  *zap.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	resp, err := t.next.RoundTrip(req)
	elapsed := time.Since(start)

	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
		zap.Duration("duration", elapsed),
	}
	if err != nil {
		t.log.Error("outbound request failed", append(fields, zap.Error(err))...)
		return nil, err
	}

	t.log.Debug("outbound request", append(fields, zap.Int("status_code", resp.StatusCode))...)
	return resp, nil
}

// NewClient returns an http.Client whose transport logs each request.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &loggingTransport{
			next: http.DefaultTransport,
			log:  logger.Get().Named("httpclient"),
		},
		Timeout: timeout,
	}
}
