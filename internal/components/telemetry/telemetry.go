package telemetry

import (
	"fmt"
)

// API is an abstraction over logging/metrics so that tests can assert on what a
// component reports.
//
// note: fault injection point
type API interface {
	// ReportBroken reports a component that broke in a way that should be addressed.
	//
	// `id` names the component (`<struct or intf>.<method>`), not the exact line
	// that failed. Ids are lowercase, underscores for large components and dashes
	// for methods, ex. `button.press` or `site_client.login`.
	ReportBroken(id string, params ...any)

	// ReportWarning reports something that is not necessarily broken but may be
	// worth looking at, ex. a status string the client does not know about.
	ReportWarning(id string, params ...any)

	// ReportDebug reports debug information that is dropped outside of verbose mode.
	ReportDebug(msg string, params ...any)

	// ReportCount reports the current count of an event. Counts are points over
	// time, they should not be summed.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every id with a namespace, like a "sub" logger.
type ScopedAPI struct {
	namespace string
	inner     API
}

func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(fmt.Sprintf("%s: %s", s.namespace, msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(fmt.Sprintf("%s: %s", s.namespace, id), count)
}
