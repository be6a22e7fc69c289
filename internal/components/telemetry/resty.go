package telemetry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	report_resty_request  = "resty.request"
	report_resty_response = "resty.response"
	report_resty_dump     = "resty.dump"
)

type instrumentResty struct {
	tel       API
	idcounter *uint64
}

// InstrumentResty reports every request made by client to tel. Requests get a
// monotonically increasing id so request, response and error lines can be
// matched up in the logs.
func InstrumentResty(client *resty.Client, tel API) {
	var idcounter uint64
	i := instrumentResty{tel: tel, idcounter: &idcounter}

	client.OnBeforeRequest(i.onBeforeRequest)
	client.OnAfterResponse(i.onAfterResponse)
	client.OnError(i.onError)
}

type reqCtxKeyType int

var reqCtxKey reqCtxKeyType

type reqCtx struct {
	id        uint64
	startTime time.Time
}

func (i instrumentResty) onBeforeRequest(_ *resty.Client, req *resty.Request) error {
	ctx := req.Context()

	id := atomic.AddUint64(i.idcounter, 1)
	ctx = context.WithValue(ctx, reqCtxKey, reqCtx{
		id:        id,
		startTime: time.Now(),
	})
	i.tel.ReportDebug(report_resty_request, id, req.Method, req.URL)

	req.SetContext(ctx)
	return nil
}

func (i instrumentResty) onAfterResponse(_ *resty.Client, res *resty.Response) error {
	rc, ok := res.Request.Context().Value(reqCtxKey).(reqCtx)
	if !ok {
		// request was made before instrumentation was attached
		return nil
	}

	i.tel.ReportDebug(
		report_resty_response,
		rc.id,
		time.Since(rc.startTime).String(),
		res.Status(),
	)
	if res.Request.RawRequest != nil {
		i.tel.ReportDebug(report_resty_dump, rc.id, formatHttpMessage(res))
	}
	return nil
}

func (i instrumentResty) onError(req *resty.Request, err error) {
	var duration time.Duration
	var id uint64
	rc, ok := req.Context().Value(reqCtxKey).(reqCtx)
	if ok {
		duration = time.Since(rc.startTime)
		id = rc.id
	}

	i.tel.ReportBroken(
		report_resty_response,
		err,
		id,
		req.Method,
		req.URL,
		duration,
	)
}

// redactedHeaders and redactedFields carry the session and the csrf token,
// dumps show that they were sent but not their values.
var redactedHeaders = map[string]bool{
	"Cookie":      true,
	"Set-Cookie":  true,
	"X-Csrftoken": true,
}

var redactedFields = map[string]bool{
	"password":            true,
	"csrfmiddlewaretoken": true,
}

const redacted = "<redacted>"

func formatHeaders(headers http.Header) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []string
	for _, k := range keys {
		for _, v := range headers[k] {
			if redactedHeaders[http.CanonicalHeaderKey(k)] {
				v = redacted
			}
			out = append(out, fmt.Sprintf("%s: %s", k, v))
		}
	}
	return strings.Join(out, "\n")
}

func formatRequestBody(req *http.Request) string {
	if req.GetBody == nil {
		return "(no body)"
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Sprintf("(get body: %s)", err.Error())
	}
	if body == nil {
		return "(no body)"
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return fmt.Sprintf("(read body: %s)", err.Error())
	}
	if len(raw) == 0 {
		return "(no body)"
	}

	contentType := req.Header.Get("content-type")
	if !strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
		return string(raw)
	}
	form, err := url.ParseQuery(string(raw))
	if err != nil {
		return string(raw)
	}
	for field := range form {
		if redactedFields[field] {
			form[field] = []string{redacted}
		}
	}
	return form.Encode()
}

// formatHttpMessage renders a request/response pair for the debug log with
// credentials redacted.
func formatHttpMessage(res *resty.Response) string {
	req := res.Request.RawRequest

	var sb strings.Builder
	fmt.Fprintf(&sb, "> %s %s\n", res.Request.Method, res.Request.URL)
	fmt.Fprintf(&sb, "%s\n\n", formatHeaders(req.Header))
	fmt.Fprintf(&sb, "%s\n\n", formatRequestBody(req))
	fmt.Fprintf(&sb, "< %s\n", res.Status())
	fmt.Fprintf(&sb, "%s\n\n", formatHeaders(res.Header()))
	sb.WriteString(res.String())
	return sb.String()
}
