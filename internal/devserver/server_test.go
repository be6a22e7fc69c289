package devserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"blogtoggle/internal/components/telemetry"
	"blogtoggle/internal/site"
	"blogtoggle/internal/toggle"
	"blogtoggle/pkg/csrf"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestServer(t testing.TB) (*httptest.Server, Store) {
	t.Helper()
	store := newTestStore(t)
	srv := httptest.NewServer(NewServer(store, &telemetry.Recorder{}))
	t.Cleanup(srv.Close)
	return srv, store
}

// browser is a plain http client with a cookie jar that does not follow
// redirects.
type browser struct {
	t      testing.TB
	base   *url.URL
	client *http.Client
}

func newBrowser(t testing.TB, srv *httptest.Server) *browser {
	base, err := url.Parse(srv.URL)
	require.NoError(t, err)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{
		t:    t,
		base: base,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (b *browser) token() string {
	token, ok := csrf.Token(b.client.Jar, b.base)
	require.True(b.t, ok, "no csrf cookie")
	return token
}

func (b *browser) get(path string) *http.Response {
	res, err := b.client.Get(b.base.String() + path)
	require.NoError(b.t, err)
	b.t.Cleanup(func() { res.Body.Close() })
	return res
}

func (b *browser) post(path string, form url.Values, header http.Header) *http.Response {
	req, err := http.NewRequest(http.MethodPost, b.base.String()+path, strings.NewReader(form.Encode()))
	require.NoError(b.t, err)
	req.Header.Set("content-type", "application/x-www-form-urlencoded")
	for k, v := range header {
		req.Header[k] = v
	}
	res, err := b.client.Do(req)
	require.NoError(b.t, err)
	b.t.Cleanup(func() { res.Body.Close() })
	return res
}

func (b *browser) login(username, password string) {
	b.get("/login")
	res := b.post("/login", url.Values{
		csrf.FormField: {b.token()},
		"username":     {username},
		"password":     {password},
	}, nil)
	require.Equal(b.t, http.StatusFound, res.StatusCode)
	require.Equal(b.t, "/articles/", res.Header.Get("location"))
}

func body(t testing.TB, res *http.Response) string {
	buff, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return string(buff)
}

func TestCSRFProtection(t *testing.T) {
	srv, _ := newTestServer(t)
	b := newBrowser(t, srv)
	b.login("fav_view_tester", "favtester")

	form := url.Values{"username": {"fav_view_tester"}}

	res := b.post("/articles/1/favorite", form, nil)
	require.Equal(t, http.StatusForbidden, res.StatusCode)

	res = b.post("/articles/1/favorite", form, http.Header{csrf.HeaderName: {"not the token"}})
	require.Equal(t, http.StatusForbidden, res.StatusCode)

	res = b.post("/articles/1/favorite", form, http.Header{csrf.HeaderName: {b.token()}})
	require.Equal(t, http.StatusOK, res.StatusCode)

	withField := url.Values{"username": {"fav_view_tester"}, csrf.FormField: {b.token()}}
	res = b.post("/articles/1/favorite", withField, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
}

func TestLoginRequired(t *testing.T) {
	srv, _ := newTestServer(t)
	b := newBrowser(t, srv)
	b.get("/articles/1")

	res := b.post("/articles/1/favorite", url.Values{"username": {"fav_view_tester"}}, http.Header{
		csrf.HeaderName: {b.token()},
	})
	require.Equal(t, http.StatusFound, res.StatusCode)
	require.Equal(t, "/login?next=%2Farticles%2F1%2Ffavorite", res.Header.Get("location"))

	res = b.get("/users/author/follow")
	require.Equal(t, http.StatusFound, res.StatusCode)
	require.True(t, strings.HasPrefix(res.Header.Get("location"), "/login?"))
}

func TestLoginRedirectsToNext(t *testing.T) {
	srv, _ := newTestServer(t)
	b := newBrowser(t, srv)

	res := b.get("/login?next=/users/author")
	require.Contains(t, body(t, res), `name="next" value="/users/author"`)

	res = b.post("/login", url.Values{
		csrf.FormField: {b.token()},
		"username":     {"fav_view_tester"},
		"password":     {"favtester"},
		"next":         {"/users/author"},
	}, nil)
	require.Equal(t, http.StatusFound, res.StatusCode)
	require.Equal(t, "/users/author", res.Header.Get("location"))
}

func TestBadLogin(t *testing.T) {
	srv, _ := newTestServer(t)
	b := newBrowser(t, srv)
	b.get("/login")

	res := b.post("/login", url.Values{
		csrf.FormField: {b.token()},
		"username":     {"fav_view_tester"},
		"password":     {"nope"},
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, body(t, res), "invalid username or password")
}

func TestToggleEndpointErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	b := newBrowser(t, srv)
	b.login("fav_view_tester", "favtester")
	header := http.Header{csrf.HeaderName: {b.token()}}

	cases := []struct {
		name   string
		path   string
		form   url.Values
		code   int
		expect string
	}{
		{"missing username", "/articles/1/favorite", url.Values{}, http.StatusInternalServerError, "{}"},
		{"unknown username", "/articles/1/favorite", url.Values{"username": {"ghost"}}, http.StatusInternalServerError, "{}"},
		{"someone else", "/articles/1/favorite", url.Values{"username": {"author"}}, http.StatusBadRequest, "{}"},
		{"unknown article", "/articles/99/favorite", url.Values{"username": {"fav_view_tester"}}, http.StatusNotFound, ""},
		{"missing follower", "/users/author/follow", url.Values{}, http.StatusInternalServerError, "{}"},
		{"unknown followee", "/users/ghost/follow", url.Values{"follower": {"fav_view_tester"}}, http.StatusNotFound, ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			res := b.post(c.path, c.form, header)
			require.Equal(t, c.code, res.StatusCode)
			if c.expect != "" {
				require.JSONEq(t, c.expect, body(t, res))
			}
		})
	}
}

func TestFavoriteResponse(t *testing.T) {
	srv, _ := newTestServer(t)
	b := newBrowser(t, srv)
	b.login("fav_view_tester", "favtester")

	res := b.post("/articles/1/favorite", url.Values{"username": {"fav_view_tester"}}, http.Header{
		csrf.HeaderName: {b.token()},
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "application/json", res.Header.Get("content-type"))

	var decoded map[string]map[string]string
	require.NoError(t, json.NewDecoder(res.Body).Decode(&decoded))
	require.Equal(t, map[string]map[string]string{"data": {"status": "favorited"}}, decoded)
}

func TestProfileHidesFollowOnOwnPage(t *testing.T) {
	srv, _ := newTestServer(t)
	b := newBrowser(t, srv)
	b.login("author", "auth0r1234")

	res := b.get("/users/author")
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NotContains(t, body(t, res), "btn-info")

	res = b.get("/users/nobody")
	require.Equal(t, http.StatusNotFound, res.StatusCode)
}

func newSiteClient(t testing.TB, srv *httptest.Server, tel telemetry.API) *site.Client {
	client, err := site.NewClient(site.Options{
		BaseUrl:   srv.URL,
		RateLimit: rate.Inf,
	}, tel)
	require.NoError(t, err)
	return client
}

func TestFavoriteButtonRoundTrip(t *testing.T) {
	ctx := context.Background()
	srv, store := newTestServer(t)
	rec := &telemetry.Recorder{}
	client := newSiteClient(t, srv, rec)

	require.NoError(t, client.Login(ctx, "fav_view_tester", "favtester"))
	require.True(t, client.LoggedIn())

	button, err := toggle.Open(ctx, client, client, "/articles/1", toggle.Favorite, rec)
	require.NoError(t, err)
	require.Equal(t, srv.URL+"/articles/1/favorite", button.Target())
	require.Equal(t, "お気に入りに追加", button.Label())
	require.Equal(t, toggle.StateOff, button.State())

	outcome, err := button.Press(ctx)
	require.NoError(t, err)
	require.Equal(t, "favorited", outcome.Status)
	require.Equal(t, "お気に入り済み", outcome.Label)

	count, err := store.CountFavorites(ctx, 1)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	// a reload renders the label the server now agrees with
	reloaded, err := toggle.Open(ctx, client, client, "/articles/1", toggle.Favorite, rec)
	require.NoError(t, err)
	require.Equal(t, "お気に入り済み", reloaded.Label())
	require.Equal(t, toggle.StateOn, reloaded.State())

	result := <-button.PressAsync(ctx)
	require.NoError(t, result.Err)
	require.Equal(t, "notfavorited", result.Outcome.Status)
	require.Equal(t, "お気に入りに追加", button.Label())
	require.False(t, button.Pending())

	require.Empty(t, rec.Find("broken", "favorite: button.press"))
}

func TestFollowButtonRoundTrip(t *testing.T) {
	ctx := context.Background()
	srv, store := newTestServer(t)
	rec := &telemetry.Recorder{}
	client := newSiteClient(t, srv, rec)

	require.NoError(t, client.Login(ctx, "fav_view_tester", "favtester"))

	button, err := toggle.Open(ctx, client, client, "/users/author", toggle.Follow, rec)
	require.NoError(t, err)
	require.Equal(t, srv.URL+"/users/author/follow", button.Target())
	require.Equal(t, "fav_view_tester", button.Payload().Get("follower"))
	require.Equal(t, "フォローする", button.Label())

	outcome, err := button.Press(ctx)
	require.NoError(t, err)
	require.Equal(t, "follow", outcome.Status)
	require.Equal(t, "フォロー中", outcome.Label)

	author, err := store.User(ctx, "author")
	require.NoError(t, err)
	count, err := store.CountFollowers(ctx, author.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	outcome, err = button.Press(ctx)
	require.NoError(t, err)
	require.Equal(t, "notfollow", outcome.Status)
	require.Equal(t, "フォローする", button.Label())
}

func TestSiteLoginRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	client := newSiteClient(t, srv, &telemetry.Recorder{})

	err := client.Login(context.Background(), "fav_view_tester", "wrong")
	require.ErrorIs(t, err, site.ErrLogin)
	require.False(t, client.LoggedIn())
}

func TestUserPagesCarryFollowButton(t *testing.T) {
	srv, _ := newTestServer(t)
	b := newBrowser(t, srv)
	b.login("fav_view_tester", "favtester")

	for _, path := range []string{"/users/author", "/users/author/favorites", "/users/author/followees", "/users/author/followers"} {
		res := b.get(path)
		require.Equal(t, http.StatusOK, res.StatusCode, path)
		page := body(t, res)
		require.Contains(t, page, `class="btn btn-info" value="フォローする"`, path)
		require.Contains(t, page, `action="/users/author/follow"`, path)
	}

	res := b.get("/users/ghost/followers")
	require.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestFollowShowsOnFollowerLists(t *testing.T) {
	ctx := context.Background()
	srv, _ := newTestServer(t)
	rec := &telemetry.Recorder{}
	client := newSiteClient(t, srv, rec)
	require.NoError(t, client.Login(ctx, "fav_view_tester", "favtester"))

	button, err := toggle.Open(ctx, client, client, "/users/author/followers", toggle.Follow, rec)
	require.NoError(t, err)
	require.Equal(t, srv.URL+"/users/author/follow", button.Target())

	outcome, err := button.Press(ctx)
	require.NoError(t, err)
	require.Equal(t, "follow", outcome.Status)

	followers, err := client.Page(ctx, "/users/author/followers")
	require.NoError(t, err)
	require.Equal(t, []string{"fav_view_tester"}, followers.Doc.Find("ul.users li a").Map(func(_ int, s *goquery.Selection) string {
		return s.Text()
	}))
	require.Equal(t, "1", followers.Doc.Find("span.followers").Text())
	require.Equal(t, "フォロー中", followers.Doc.Find(".btn.btn-info").AttrOr("value", ""))

	followees, err := client.Page(ctx, "/users/fav_view_tester/followees")
	require.NoError(t, err)
	require.Equal(t, "author", followees.Doc.Find("ul.users li a").Text())
	require.Equal(t, "1", followees.Doc.Find("span.followees").Text())

	// a second press unfollows
	outcome, err = button.Press(ctx)
	require.NoError(t, err)
	require.Equal(t, "notfollow", outcome.Status)

	followers, err = client.Page(ctx, "/users/author/followers")
	require.NoError(t, err)
	require.Zero(t, followers.Doc.Find("ul.users li").Length())
}

func TestPostedAndFavoriteArticles(t *testing.T) {
	ctx := context.Background()
	srv, store := newTestServer(t)
	for i := range 6 {
		_, err := store.CreateArticle(ctx, "author", fmt.Sprintf("more_%d", i), "content")
		require.NoError(t, err)
	}

	b := newBrowser(t, srv)
	b.login("fav_view_tester", "favtester")

	first := body(t, b.get("/users/author"))
	require.Equal(t, ArticlesPerPage, strings.Count(first, `<li><a href="/articles/`))
	require.Contains(t, first, `class="next" href="?page=2"`)

	second := body(t, b.get("/users/author?page=2"))
	require.Equal(t, 2, strings.Count(second, `<li><a href="/articles/`))
	require.Contains(t, second, "test_title")
	require.NotContains(t, second, `class="next"`)

	require.Equal(t, http.StatusNotFound, b.get("/users/author?page=3").StatusCode)
	require.Equal(t, http.StatusNotFound, b.get("/users/author?page=zero").StatusCode)

	require.NotContains(t, body(t, b.get("/users/fav_view_tester/favorites")), "test_title")
	res := b.post("/articles/1/favorite", url.Values{"username": {"fav_view_tester"}}, http.Header{
		csrf.HeaderName: {b.token()},
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, body(t, b.get("/users/fav_view_tester/favorites")), "test_title")
}

func TestFollowSelfIsAccepted(t *testing.T) {
	srv, _ := newTestServer(t)
	b := newBrowser(t, srv)
	b.login("author", "auth0r1234")

	res := b.post("/users/author/follow", url.Values{"follower": {"author"}}, http.Header{
		csrf.HeaderName: {b.token()},
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.JSONEq(t, `{"data":{"status":"follow"}}`, body(t, res))
}
