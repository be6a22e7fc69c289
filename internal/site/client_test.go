package site

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"blogtoggle/internal/components/telemetry"
	"blogtoggle/pkg/csrf"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

const loginPage = `<html><body>
<form action="/login" method="post">
  <input type="hidden" name="csrfmiddlewaretoken" value="f0rm">
  <input type="text" name="username">
  <input type="password" name="password">
</form>
</body></html>`

func fakeBlog(t testing.TB) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: csrf.CookieName, Value: "c00kie", Path: "/"})
		w.Write([]byte(loginPage))
	})
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		if r.PostFormValue(csrf.FormField) != "f0rm" || r.Header.Get(csrf.HeaderName) != "c00kie" {
			http.Error(w, "csrf", http.StatusForbidden)
			return
		}
		if r.PostFormValue("username") != "author" || r.PostFormValue("password") != "auth0r1234" {
			w.Write([]byte(loginPage))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "s3ssion", Path: "/"})
		http.Redirect(w, r, "/home", http.StatusFound)
	})
	mux.HandleFunc("GET /home", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>home</body></html>`))
	})
	mux.HandleFunc("GET /old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new/page", http.StatusFound)
	})
	mux.HandleFunc("GET /new/page", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><form action="follow"></form></body></html>`))
	})
	mux.HandleFunc("POST /forbidden", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "{}", http.StatusForbidden)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t testing.TB, srv *httptest.Server) (*Client, *telemetry.Recorder) {
	rec := &telemetry.Recorder{}
	client, err := NewClient(Options{BaseUrl: srv.URL, RateLimit: rate.Inf}, rec)
	require.NoError(t, err)
	return client, rec
}

func TestNewClientRejectsRelativeBaseUrl(t *testing.T) {
	_, err := NewClient(Options{BaseUrl: "/just/a/path"}, &telemetry.Recorder{})
	require.Error(t, err)
}

func TestLogin(t *testing.T) {
	srv := fakeBlog(t)
	client, _ := newTestClient(t, srv)

	require.False(t, client.LoggedIn())
	_, ok := client.CSRFToken()
	require.False(t, ok)

	require.NoError(t, client.Login(context.Background(), "author", "auth0r1234"))
	require.True(t, client.LoggedIn())

	token, ok := client.CSRFToken()
	require.True(t, ok)
	require.Equal(t, "c00kie", token)
}

func TestLoginWrongPassword(t *testing.T) {
	srv := fakeBlog(t)
	client, rec := newTestClient(t, srv)

	err := client.Login(context.Background(), "author", "wrong")
	require.ErrorIs(t, err, ErrLogin)
	require.False(t, client.LoggedIn())
	require.Len(t, rec.Find("warning", "site: client.login"), 1)
}

func TestPageFollowsRedirects(t *testing.T) {
	srv := fakeBlog(t)
	client, _ := newTestClient(t, srv)

	page, err := client.Page(context.Background(), "/old")
	require.NoError(t, err)
	require.Equal(t, "/new/page", page.Url.Path)

	action, _ := page.Doc.Find("form").Attr("action")
	target, err := page.Resolve(action)
	require.NoError(t, err)
	require.Equal(t, srv.URL+"/new/follow", target.String())

	_, err = client.Page(context.Background(), "/missing")
	require.Error(t, err)
}

func TestPostFormReturnsErrorResponses(t *testing.T) {
	srv := fakeBlog(t)
	client, rec := newTestClient(t, srv)

	res, err := client.PostForm(context.Background(), "/forbidden", url.Values{"a": {"1"}})
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, res.StatusCode())
	require.Len(t, rec.Find("warning", "site: client.post-form"), 1)
}
