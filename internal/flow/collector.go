package flow

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// httpCollector POSTs each event to an external collector endpoint
// (spec.md §6.3), retrying twice at 100ms/400ms before dropping and
// counting the failure.
type httpCollector struct {
	url     string
	client  *http.Client
	logger  *zap.Logger
	dropped func()
}

// NewHTTPCollector builds a Collector POSTing to url. onDrop is invoked
// (e.g. to increment a counter) when both retries are exhausted; pass nil
// to ignore.
func NewHTTPCollector(url string, logger *zap.Logger, onDrop func()) Collector {
	if onDrop == nil {
		onDrop = func() {}
	}
	return &httpCollector{
		url:     url,
		client:  &http.Client{Timeout: 5 * time.Second},
		logger:  logger,
		dropped: onDrop,
	}
}

var collectorBackoff = []time.Duration{100 * time.Millisecond, 400 * time.Millisecond}

func (c *httpCollector) Post(ctx context.Context, e Event) {
	if c.url == "" {
		return
	}
	body, err := json.Marshal(e)
	if err != nil {
		c.logger.Error("data-flow event marshal failed", zap.Error(err))
		return
	}

	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return statusError(resp.StatusCode)
		}
		return nil
	}

	if err := attempt(); err == nil {
		return
	}

	for _, wait := range collectorBackoff {
		time.Sleep(wait)
		if err := attempt(); err == nil {
			return
		}
	}

	c.logger.Warn("data-flow collector post exhausted retries, dropping event", zap.String("flow_id", e.FlowID))
	c.dropped()
}

type statusError int

func (e statusError) Error() string {
	return http.StatusText(int(e))
}
