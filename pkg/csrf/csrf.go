// Package csrf attaches the anti-forgery token the server hands out in the
// `csrftoken` cookie to unsafe same-origin requests.
package csrf

import (
	"fmt"
	"net/http"
	"net/url"

	"blogtoggle/pkg/cookieutil"

	"github.com/go-resty/resty/v2"
)

const (
	CookieName = "csrftoken"
	HeaderName = "X-CSRFToken"
	// FormField is the hidden input server rendered forms carry the token in.
	FormField = "csrfmiddlewaretoken"
)

// SafeMethod reports whether method is one of the methods that are not
// expected to have side effects and so never carry the token. The match is
// exact and case sensitive.
func SafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

// Token reads the csrf cookie the jar would send to target.
func Token(jar http.CookieJar, target *url.URL) (string, bool) {
	if jar == nil || target == nil {
		return "", false
	}
	return cookieutil.Get(cookieutil.Header(jar.Cookies(target)), CookieName)
}

func crossDomain(origin, target *url.URL) bool {
	if !target.IsAbs() {
		return false
	}
	return origin.Scheme != target.Scheme || origin.Host != target.Host
}

// Attach registers a request hook on client that sets the csrf header (and
// marks the request as XMLHttpRequest) on unsafe requests to the client's own
// origin, which is its base url. Requests to other origins are left alone.
func Attach(client *resty.Client) error {
	origin, err := url.Parse(client.BaseURL)
	if err != nil {
		return fmt.Errorf("csrf: parse base url: %w", err)
	}
	if !origin.IsAbs() {
		return fmt.Errorf("csrf: base url '%s' is not absolute", client.BaseURL)
	}

	client.OnBeforeRequest(func(c *resty.Client, req *resty.Request) error {
		if SafeMethod(req.Method) {
			return nil
		}
		target, err := url.Parse(req.URL)
		if err != nil {
			return fmt.Errorf("csrf: parse request url: %w", err)
		}
		if crossDomain(origin, target) {
			return nil
		}
		target = origin.ResolveReference(target)

		req.SetHeader("X-Requested-With", "XMLHttpRequest")
		token, ok := Token(c.GetClient().Jar, target)
		if !ok {
			return nil
		}
		req.SetHeader(HeaderName, token)
		return nil
	})
	return nil
}
