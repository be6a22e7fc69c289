package devserver

import (
	"html/template"

	"blogtoggle/internal/devserver/db"
)

var pages = template.Must(template.New("base").Parse(`
{{define "header"}}<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<nav>{{if .User}}<span class="user">{{.User}}</span>{{else}}<a href="/login">login</a>{{end}}</nav>
{{end}}

{{define "footer"}}</body>
</html>
{{end}}

{{define "login"}}{{template "header" .}}
<form action="/login" method="post">
  <input type="hidden" name="csrfmiddlewaretoken" value="{{.CSRFToken}}">
  {{if .Next}}<input type="hidden" name="next" value="{{.Next}}">{{end}}
  {{if .Error}}<p class="error">{{.Error}}</p>{{end}}
  <input type="text" name="username">
  <input type="password" name="password">
  <input type="submit" value="login">
</form>
{{template "footer" .}}{{end}}

{{define "articles"}}{{template "header" .}}
<ul class="articles">
{{range .Articles}}  <li><a href="/articles/{{.ID}}">{{.Title}}</a> by <a href="/users/{{.Author}}">{{.Author}}</a></li>
{{end}}</ul>
{{template "footer" .}}{{end}}

{{define "article"}}{{template "header" .}}
<h1>{{.Article.Title}}</h1>
<p class="author"><a href="/users/{{.Article.Author}}">{{.Article.Author}}</a></p>
<div class="content">{{.Article.Content}}</div>
<p class="favorites">{{.Count}}</p>
{{if .User}}<form name="favorite" action="/articles/{{.Article.ID}}/favorite" method="post">
  <input type="hidden" name="csrfmiddlewaretoken" value="{{.CSRFToken}}">
  <input type="hidden" name="username" value="{{.User}}">
  <input type="submit" id="favorite_button" value="{{.Label}}">
</form>{{end}}
{{template "footer" .}}{{end}}

{{define "profile"}}{{template "header" .}}
<h1>{{.Profile}}</h1>
<ul class="tabs">
  <li{{if eq .Tab "articles"}} class="active"{{end}}><a href="/users/{{.Profile}}">articles</a></li>
  <li{{if eq .Tab "favorites"}} class="active"{{end}}><a href="/users/{{.Profile}}/favorites">favorites</a></li>
  <li{{if eq .Tab "followees"}} class="active"{{end}}><a href="/users/{{.Profile}}/followees">followees <span class="followees">{{.Followees}}</span></a></li>
  <li{{if eq .Tab "followers"}} class="active"{{end}}><a href="/users/{{.Profile}}/followers">followers <span class="followers">{{.Count}}</span></a></li>
</ul>
{{if and .User (ne .User .Profile)}}<form action="/users/{{.Profile}}/follow" method="post">
  <input type="hidden" name="csrfmiddlewaretoken" value="{{.CSRFToken}}">
  <input type="hidden" name="follower" value="{{.User}}">
  <input type="submit" class="btn btn-info" value="{{.Label}}">
</form>{{end}}
{{if or (eq .Tab "articles") (eq .Tab "favorites")}}<ul class="articles">
{{range .Articles}}  <li><a href="/articles/{{.ID}}">{{.Title}}</a> by <a href="/users/{{.Author}}">{{.Author}}</a></li>
{{end}}</ul>{{else}}<ul class="users">
{{range .Users}}  <li><a href="/users/{{.}}">{{.}}</a></li>
{{end}}</ul>{{end}}
{{if .PrevPage}}<a class="prev" href="?page={{.PrevPage}}">prev</a>{{end}}
{{if .NextPage}}<a class="next" href="?page={{.NextPage}}">next</a>{{end}}
{{template "footer" .}}{{end}}
`))

type pageData struct {
	Title     string
	User      string
	CSRFToken string
	Error     string
	Next      string
	Label     string
	Count     int64
	Profile   string
	Article   db.Article
	Articles  []db.Article

	// user pages
	Tab       string
	Followees int64
	Users     []string
	Page      int
	PrevPage  int
	NextPage  int
}
