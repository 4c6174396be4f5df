package remote

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/goware/urlx"
	"github.com/rpcpool/lazy-remote-file/metrics"
	"github.com/rpcpool/lazy-remote-file/telemetry"
	"k8s.io/klog/v2"
)

// Capabilities is what the probe learned about a remote file.
type Capabilities struct {
	Length int64
	// AcceptRanges is true when the server advertises "Accept-Ranges: bytes".
	AcceptRanges bool
}

// Probe sends one HEAD request to locator and checks that the remote file
// has a usable length and is not served with a compressing transport.
// A missing byte-range advertisement is only logged: some servers (or CORS
// setups that hide the header) serve ranges without advertising them.
func Probe(ctx context.Context, client *http.Client, locator string) (*Capabilities, error) {
	if _, err := urlx.Parse(locator); err != nil {
		return nil, &ProbeError{Locator: locator, Reason: "invalid locator", Err: err}
	}
	if client == nil {
		client = DefaultClient()
	}

	ctx, span := telemetry.StartRemoteIOSpan(ctx, "HEAD", locator, 0, 0)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, locator, nil)
	if err != nil {
		return nil, &ProbeError{Locator: locator, Reason: "invalid request", Err: err}
	}
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := client.Do(req)
	code := "error"
	if err == nil {
		code = strconv.Itoa(resp.StatusCode)
	}
	metrics.RemoteFileHttpRequestsTotal.WithLabelValues(http.MethodHead, code).Inc()
	if err != nil {
		telemetry.RecordError(span, err, "HEAD failed")
		return nil, &ProbeError{Locator: locator, Err: err}
	}
	resp.Body.Close()

	if !isSuccess(resp.StatusCode) && resp.StatusCode != http.StatusNotModified {
		err := &ProbeError{Locator: locator, Status: resp.StatusCode}
		telemetry.RecordError(span, err, "unexpected status")
		return nil, err
	}

	acceptRanges := strings.EqualFold(strings.TrimSpace(resp.Header.Get("Accept-Ranges")), "bytes")
	if !acceptRanges {
		klog.Warningf(
			"%s: server either does not support byte serving or does not advertise it (`Accept-Ranges: bytes` header missing); seen response headers: %v",
			locator,
			resp.Header,
		)
	}

	if encoding := contentEncoding(resp.Header); encoding != "" {
		klog.Errorf("%s: response headers: %v", locator, resp.Header)
		err := &ProbeError{Locator: locator, Status: resp.StatusCode, Reason: "server uses " + encoding + " transport encoding"}
		telemetry.RecordError(span, err, "compressed transport")
		return nil, err
	}
	if resp.ContentLength <= 0 {
		klog.Errorf("%s: response headers: %v", locator, resp.Header)
		err := &ProbeError{Locator: locator, Status: resp.StatusCode, Reason: "server doesn't have length"}
		telemetry.RecordError(span, err, "missing length")
		return nil, err
	}

	return &Capabilities{
		Length:       resp.ContentLength,
		AcceptRanges: acceptRanges,
	}, nil
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

// contentEncoding returns the transport encoding of a response, or "" when
// the body is sent as-is.
func contentEncoding(h http.Header) string {
	encoding := strings.ToLower(strings.TrimSpace(h.Get("Content-Encoding")))
	if encoding == "identity" {
		return ""
	}
	return encoding
}
