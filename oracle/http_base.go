package oracle

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/InjectiveLabs/metrics"
	log "github.com/InjectiveLabs/suplog"

	"github.com/InjectiveLabs/oracle-aggregator/internal/errs"
)

// httpIDMapping holds the two lookup maps spec §4.1 requires for every
// client: symbol->price_id and id(lower)->symbol.
type httpIDMapping struct {
	symbolToID map[string]string
	idToSymbol map[string]string
}

func newHTTPIDMapping(table map[string]string) httpIDMapping {
	m := httpIDMapping{
		symbolToID: make(map[string]string, len(table)),
		idToSymbol: make(map[string]string, len(table)),
	}
	for symbol, id := range table {
		m.symbolToID[symbol] = id
		m.idToSymbol[lowerASCII(id)] = symbol
	}
	return m
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// httpGetJSON issues a GET request and decodes the JSON body into out,
// classifying the result per spec §4.1's two upstream error shapes:
// network/5xx is transient (retryable), 4xx/decode failure is permanent.
func httpGetJSON(ctx context.Context, client *http.Client, protocol Protocol, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &errs.UpstreamPermanentError{Protocol: string(protocol), Cause: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return &errs.UpstreamTransientError{Protocol: string(protocol), Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return &errs.UpstreamTransientError{Protocol: string(protocol), Cause: httpStatusError(resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return &errs.UpstreamPermanentError{Protocol: string(protocol), Cause: httpStatusError(resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &errs.UpstreamTransientError{Protocol: string(protocol), Cause: err}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &errs.UpstreamPermanentError{Protocol: string(protocol), Cause: err}
	}
	return nil
}

type httpStatusErr struct{ code int }

func httpStatusError(code int) error { return &httpStatusErr{code: code} }

func (e *httpStatusErr) Error() string {
	return "unexpected HTTP status: " + http.StatusText(e.code)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func httpClientLogger(protocol Protocol, chain string) log.Logger {
	return log.WithFields(log.Fields{
		"svc":      "oracle",
		"protocol": string(protocol),
		"chain":    chain,
	})
}

func httpClientTags(protocol Protocol, chain string) metrics.Tags {
	return metrics.Tags{"protocol": string(protocol), "chain": chain}
}
