// Package devserver is a local implementation of the blog's favorite and
// follow endpoints (and the pages and login around them) that the toggle
// client can be pointed at.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"blogtoggle/internal/components/telemetry"
	"blogtoggle/internal/toggle"
	"blogtoggle/pkg/csrf"

	"github.com/gorilla/mux"
)

const (
	report_server_render   = "server.render"
	report_server_favorite = "server.favorite"
	report_server_follow   = "server.follow"
	report_server_login    = "server.login"
	report_server_request  = "server.request"
)

type Server struct {
	store    Store
	sessions *sessions
	tel      telemetry.API
	router   *mux.Router
}

func NewServer(store Store, tel telemetry.API) *Server {
	s := &Server{
		store:    store,
		sessions: newSessions(),
		tel:      telemetry.NewScopedAPI("devserver", tel),
		router:   mux.NewRouter(),
	}

	r := s.router
	r.Use(s.logRequests, s.csrfProtect)

	r.Handle("/", http.RedirectHandler("/articles/", http.StatusFound)).Methods(http.MethodGet)
	r.HandleFunc("/login", s.loginPage).Methods(http.MethodGet)
	r.HandleFunc("/login", s.login).Methods(http.MethodPost)
	r.HandleFunc("/logout", s.logout).Methods(http.MethodPost)

	r.HandleFunc("/articles/", s.articlesPage).Methods(http.MethodGet)
	r.HandleFunc("/articles/{id:[0-9]+}", s.articlePage).Methods(http.MethodGet)
	r.HandleFunc("/articles/{id:[0-9]+}/favorite", s.requireLogin(s.favorite)).Methods(http.MethodPost)
	r.HandleFunc("/articles/{id:[0-9]+}/favorite", s.requireLogin(s.redirectTo("/articles/{id}"))).Methods(http.MethodGet)

	r.HandleFunc("/users/{username}", s.userPage(tabArticles)).Methods(http.MethodGet)
	r.HandleFunc("/users/{username}/favorites", s.userPage(tabFavorites)).Methods(http.MethodGet)
	r.HandleFunc("/users/{username}/followees", s.userPage(tabFollowees)).Methods(http.MethodGet)
	r.HandleFunc("/users/{username}/followers", s.userPage(tabFollowers)).Methods(http.MethodGet)
	r.HandleFunc("/users/{username}/follow", s.requireLogin(s.follow)).Methods(http.MethodPost)
	r.HandleFunc("/users/{username}/follow", s.requireLogin(s.redirectTo("/users/{username}"))).Methods(http.MethodGet)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type ctxKey int

const (
	csrfTokenKey ctxKey = iota
	userKey
)

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.tel.ReportDebug(report_server_request, r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

// csrfProtect hands every client a csrftoken cookie and rejects unsafe
// requests that do not echo it back in the X-CSRFToken header or the
// csrfmiddlewaretoken form field.
func (s *Server) csrfProtect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ""
		cookie, err := r.Cookie(csrfCookie)
		if err == nil && cookie.Value != "" {
			token = cookie.Value
		} else if csrf.SafeMethod(r.Method) {
			token, err = newCSRFToken()
			if err != nil {
				s.tel.ReportBroken(report_server_request, err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			http.SetCookie(w, &http.Cookie{
				Name:     csrfCookie,
				Value:    token,
				Path:     "/",
				SameSite: http.SameSiteLaxMode,
			})
		}

		if !csrf.SafeMethod(r.Method) {
			sent := r.Header.Get(csrf.HeaderName)
			if sent == "" {
				sent = r.PostFormValue(csrf.FormField)
			}
			if token == "" || sent != token {
				http.Error(w, "CSRF verification failed", http.StatusForbidden)
				return
			}
		}

		ctx := context.WithValue(r.Context(), csrfTokenKey, token)
		if session, err := r.Cookie(sessionCookie); err == nil {
			if username, ok := s.sessions.user(session.Value); ok {
				ctx = context.WithValue(ctx, userKey, username)
			}
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func csrfToken(r *http.Request) string {
	token, _ := r.Context().Value(csrfTokenKey).(string)
	return token
}

func currentUser(r *http.Request) string {
	user, _ := r.Context().Value(userKey).(string)
	return user
}

func (s *Server) requireLogin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if currentUser(r) == "" {
			target := "/login?" + url.Values{"next": {r.URL.Path}}.Encode()
			http.Redirect(w, r, target, http.StatusFound)
			return
		}
		next(w, r)
	}
}

// redirectTo sends the browser to path with its {var} placeholders filled in
// from the route.
func (s *Server) redirectTo(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := path
		for k, v := range mux.Vars(r) {
			target = strings.ReplaceAll(target, "{"+k+"}", url.PathEscape(v))
		}
		http.Redirect(w, r, target, http.StatusFound)
	}
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data pageData) {
	data.User = currentUser(r)
	data.CSRFToken = csrfToken(r)
	w.Header().Set("content-type", "text/html; charset=utf-8")
	err := pages.ExecuteTemplate(w, name, data)
	if err != nil {
		s.tel.ReportBroken(report_server_render, err, name)
	}
}

type statusData struct {
	Status string `json:"status"`
}

type statusResponse struct {
	Data statusData `json:"data"`
}

func writeJson(w http.ResponseWriter, code int, body any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

// invalidForm is what the toggle views answer when the submitted form does not
// validate.
func invalidForm(w http.ResponseWriter) {
	writeJson(w, http.StatusInternalServerError, struct{}{})
}

func (s *Server) loginPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "login", pageData{Title: "login", Next: r.URL.Query().Get("next")})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")

	user, err := s.store.Authenticate(r.Context(), username, password)
	if errors.Is(err, ErrNoUser) {
		s.render(w, r, "login", pageData{
			Title: "login",
			Error: "invalid username or password",
			Next:  r.PostFormValue("next"),
		})
		return
	}
	if err != nil {
		s.tel.ReportBroken(report_server_login, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	session, err := s.sessions.create(user.Username)
	if err != nil {
		s.tel.ReportBroken(report_server_login, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    session,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	next := r.PostFormValue("next")
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		next = "/articles/"
	}
	http.Redirect(w, r, next, http.StatusFound)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if session, err := r.Cookie(sessionCookie); err == nil {
		s.sessions.delete(session.Value)
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1})
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (s *Server) articlesPage(w http.ResponseWriter, r *http.Request) {
	articles, err := s.store.Articles(r.Context())
	if err != nil {
		s.tel.ReportBroken(report_server_render, err, "articles")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.render(w, r, "articles", pageData{Title: "articles", Articles: articles})
}

func articleID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil
}

func (s *Server) articlePage(w http.ResponseWriter, r *http.Request) {
	id, ok := articleID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	article, err := s.store.Article(r.Context(), id)
	if errors.Is(err, ErrNoArticle) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.tel.ReportBroken(report_server_render, err, "article")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	count, err := s.store.CountFavorites(r.Context(), article.ID)
	if err != nil {
		s.tel.ReportBroken(report_server_render, err, "article")
	}

	data := pageData{Title: article.Title, Article: article, Count: count}
	if username := currentUser(r); username != "" {
		state := toggle.StateOff
		user, err := s.store.User(r.Context(), username)
		if err == nil {
			favorited, err := s.store.IsFavorited(r.Context(), article.ID, user.ID)
			if err != nil {
				s.tel.ReportBroken(report_server_render, err, "article")
			}
			if favorited {
				state = toggle.StateOn
			}
		}
		data.Label = toggle.Favorite.Label(state)
	}
	s.render(w, r, "article", data)
}

func (s *Server) favorite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	username := r.PostFormValue("username")
	if username == "" {
		invalidForm(w)
		return
	}
	user, err := s.store.User(ctx, username)
	if errors.Is(err, ErrNoUser) {
		invalidForm(w)
		return
	}
	if err != nil {
		s.tel.ReportBroken(report_server_favorite, err)
		invalidForm(w)
		return
	}
	if user.Username != currentUser(r) {
		writeJson(w, http.StatusBadRequest, struct{}{})
		return
	}

	id, ok := articleID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	article, err := s.store.Article(ctx, id)
	if errors.Is(err, ErrNoArticle) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.tel.ReportBroken(report_server_favorite, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	favorited, err := s.store.ToggleFavorite(ctx, article.ID, user.ID)
	if err != nil {
		s.tel.ReportBroken(report_server_favorite, err, article.ID, user.ID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	status := toggle.Favorite.StatusOff
	if favorited {
		status = toggle.Favorite.StatusOn
	}
	writeJson(w, http.StatusOK, statusResponse{Data: statusData{Status: status}})
}

const (
	tabArticles  = "articles"
	tabFavorites = "favorites"
	tabFollowees = "followees"
	tabFollowers = "followers"
)

// pageNumber reads the 1-based ?page= parameter.
func pageNumber(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("page")
	if raw == "" {
		return 1, true
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 0, false
	}
	return page, true
}

// userPage renders one of the user's list pages (posted articles, favorites,
// followees, followers). Each of them carries the follow button for the
// profile user.
func (s *Server) userPage(tab string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		profile, err := s.store.User(ctx, mux.Vars(r)["username"])
		if errors.Is(err, ErrNoUser) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			s.tel.ReportBroken(report_server_render, err, tab)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		page, ok := pageNumber(r)
		if !ok {
			http.NotFound(w, r)
			return
		}

		data := pageData{
			Title:   profile.Username,
			Profile: profile.Username,
			Tab:     tab,
			Page:    page,
		}

		var more bool
		var length int
		switch tab {
		case tabArticles:
			data.Articles, more, err = s.store.PostedArticles(ctx, profile.ID, page)
			length = len(data.Articles)
		case tabFavorites:
			data.Articles, more, err = s.store.FavoriteArticles(ctx, profile.ID, page)
			length = len(data.Articles)
		case tabFollowees:
			data.Users, more, err = s.store.Followees(ctx, profile.ID, page)
			length = len(data.Users)
		case tabFollowers:
			data.Users, more, err = s.store.Followers(ctx, profile.ID, page)
			length = len(data.Users)
		}
		if err != nil {
			s.tel.ReportBroken(report_server_render, err, tab)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if page > 1 && length == 0 {
			http.NotFound(w, r)
			return
		}
		if more {
			data.NextPage = page + 1
		}
		if page > 1 {
			data.PrevPage = page - 1
		}

		data.Count, err = s.store.CountFollowers(ctx, profile.ID)
		if err != nil {
			s.tel.ReportBroken(report_server_render, err, tab)
		}
		data.Followees, err = s.store.CountFollowees(ctx, profile.ID)
		if err != nil {
			s.tel.ReportBroken(report_server_render, err, tab)
		}

		if username := currentUser(r); username != "" && username != profile.Username {
			state := toggle.StateOff
			user, err := s.store.User(ctx, username)
			if err == nil {
				following, err := s.store.IsFollowing(ctx, user.ID, profile.ID)
				if err != nil {
					s.tel.ReportBroken(report_server_render, err, tab)
				}
				if following {
					state = toggle.StateOn
				}
			}
			data.Label = toggle.Follow.Label(state)
		}
		s.render(w, r, "profile", data)
	}
}

func (s *Server) follow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	followerName := r.PostFormValue("follower")
	if followerName == "" {
		invalidForm(w)
		return
	}
	follower, err := s.store.User(ctx, followerName)
	if errors.Is(err, ErrNoUser) {
		invalidForm(w)
		return
	}
	if err != nil {
		s.tel.ReportBroken(report_server_follow, err)
		invalidForm(w)
		return
	}
	if follower.Username != currentUser(r) {
		writeJson(w, http.StatusBadRequest, struct{}{})
		return
	}

	followee, err := s.store.User(ctx, mux.Vars(r)["username"])
	if errors.Is(err, ErrNoUser) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.tel.ReportBroken(report_server_follow, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	following, err := s.store.ToggleFollow(ctx, follower.ID, followee.ID)
	if err != nil {
		s.tel.ReportBroken(report_server_follow, err, follower.ID, followee.ID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	status := toggle.Follow.StatusOff
	if following {
		status = toggle.Follow.StatusOn
	}
	writeJson(w, http.StatusOK, statusResponse{Data: statusData{Status: status}})
}
