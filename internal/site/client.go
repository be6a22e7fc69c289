// client.go holds the http session against the blog site: login, fetching
// pages and posting forms back with the csrf token attached.

package site

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"blogtoggle/internal/assert"
	"blogtoggle/internal/components/telemetry"
	"blogtoggle/pkg/csrf"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	report_client_login     = "client.login"
	report_client_page      = "client.page"
	report_client_post_form = "client.post-form"
)

const SessionCookie = "sessionid"

var ErrLogin = errors.New("login failed")

type Options struct {
	BaseUrl string
	// RateLimit is the max requests per second, 0 means 2.
	RateLimit rate.Limit
	// Timeout is the per request timeout, 0 means 30 seconds.
	Timeout time.Duration
}

type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client

	tel telemetry.API
}

func NewClient(opts Options, tel telemetry.API) (*Client, error) {
	assert.NotNil(tel)
	assert.NotEmptyStr(opts.BaseUrl)

	tel = telemetry.NewScopedAPI("site", tel)

	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}
	if !baseUrl.IsAbs() {
		return nil, fmt.Errorf("base url '%s' must be absolute", opts.BaseUrl)
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	httpClient.SetCookieJar(jar)
	httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)

	httpClient.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	httpClient.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = time.Second * 30
	}
	httpClient.SetTimeout(timeout)

	limit := opts.RateLimit
	if limit == 0 {
		limit = 2
	}
	// burst >= 2 so that a login (GET then POST) is never delayed
	rateLimiter := rate.NewLimiter(limit, 2)
	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	err = csrf.Attach(httpClient)
	if err != nil {
		return nil, err
	}
	telemetry.InstrumentResty(httpClient, tel)

	return &Client{
		BaseUrl: baseUrl,
		Http:    httpClient,
		tel:     tel,
	}, nil
}

// CSRFToken returns the token from the csrftoken cookie the site handed out.
func (c *Client) CSRFToken() (string, bool) {
	return csrf.Token(c.Http.GetClient().Jar, c.BaseUrl)
}

func (c *Client) cookie(name string) (string, bool) {
	for _, cookie := range c.Http.GetClient().Jar.Cookies(c.BaseUrl) {
		if cookie.Name == name {
			return cookie.Value, true
		}
	}
	return "", false
}

func (c *Client) LoggedIn() bool {
	_, ok := c.cookie(SessionCookie)
	return ok
}

func (c *Client) Login(ctx context.Context, username, password string) error {
	loginError := func(err error) error {
		return fmt.Errorf("%w: %w", ErrLogin, err)
	}

	page, err := c.Page(ctx, "/login")
	if err != nil {
		c.tel.ReportBroken(
			report_client_login,
			fmt.Errorf("login page request: %w", err),
		)
		return loginError(err)
	}

	token := page.Doc.Find(fmt.Sprintf("input[name=%s]", csrf.FormField)).AttrOr("value", "")
	if token == "" {
		err := fmt.Errorf("could not find %s on login page", csrf.FormField)
		c.tel.ReportBroken(report_client_login, err)
		return loginError(err)
	}

	res, err := c.Http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			csrf.FormField: token,
			"username":     username,
			"password":     password,
		}).
		Post("/login")
	if err != nil {
		c.tel.ReportBroken(
			report_client_login,
			fmt.Errorf("login request: %w", err),
		)
		return loginError(err)
	}
	if res.IsError() {
		return loginError(fmt.Errorf("login request: %s", res.Status()))
	}

	if !c.LoggedIn() {
		c.tel.ReportWarning(
			report_client_login,
			fmt.Errorf("no %s cookie after login", SessionCookie),
			username,
		)
		return loginError(fmt.Errorf("invalid username or password"))
	}
	return nil
}

// Page is a parsed html page together with the url it ended up being served
// from (after redirects), relative links on it resolve against Url.
type Page struct {
	Url *url.URL
	Doc *goquery.Document
}

// Resolve resolves a (possibly relative) reference found on the page.
func (p Page) Resolve(ref string) (*url.URL, error) {
	parsed, err := url.Parse(ref)
	if err != nil {
		return nil, err
	}
	return p.Url.ResolveReference(parsed), nil
}

func (c *Client) Page(ctx context.Context, path string) (Page, error) {
	c.tel.ReportDebug(report_client_page, path)

	res, err := c.Http.R().
		SetContext(ctx).
		SetHeader("accept", "text/html").
		Get(path)
	if err != nil {
		c.tel.ReportBroken(report_client_page, fmt.Errorf("fetch: %w", err), path)
		return Page{}, err
	}
	if res.IsError() {
		return Page{}, fmt.Errorf("fetch %s: %s", path, res.Status())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		c.tel.ReportBroken(report_client_page, fmt.Errorf("parse: %w", err), path)
		return Page{}, err
	}

	pageUrl := c.BaseUrl.ResolveReference(&url.URL{Path: path})
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		pageUrl = res.RawResponse.Request.URL
	}
	return Page{Url: pageUrl, Doc: doc}, nil
}

// PostForm posts values url-encoded to target and asks for json back. The
// response is returned whatever its status, the caller decides what counts as
// a failure.
func (c *Client) PostForm(ctx context.Context, target string, values url.Values) (*resty.Response, error) {
	res, err := c.Http.R().
		SetContext(ctx).
		SetHeader("accept", "application/json, text/javascript, */*; q=0.01").
		SetFormDataFromValues(values).
		Post(target)
	if err != nil {
		c.tel.ReportBroken(report_client_post_form, err, target)
		return nil, err
	}
	if res.StatusCode() != http.StatusOK {
		c.tel.ReportWarning(report_client_post_form, res.Status(), target)
	}
	return res, nil
}
