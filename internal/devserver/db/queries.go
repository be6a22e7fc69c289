package db

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

type User struct {
	ID           int64
	Username     string
	PasswordHash string
}

type Article struct {
	ID       int64
	AuthorID int64
	Author   string
	Title    string
	Content  string
}

const createUser = `insert into users (username, password_hash) values (?, ?) returning id`

type CreateUserParams struct {
	Username     string
	PasswordHash string
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, createUser, arg.Username, arg.PasswordHash)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const getUser = `select id, username, password_hash from users where username = ?`

func (q *Queries) GetUser(ctx context.Context, username string) (User, error) {
	row := q.db.QueryRowContext(ctx, getUser, username)
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash)
	return u, err
}

const createArticle = `insert into articles (author_id, title, content) values (?, ?, ?) returning id`

type CreateArticleParams struct {
	AuthorID int64
	Title    string
	Content  string
}

func (q *Queries) CreateArticle(ctx context.Context, arg CreateArticleParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, createArticle, arg.AuthorID, arg.Title, arg.Content)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const getArticle = `select a.id, a.author_id, u.username, a.title, a.content
from articles a
join users u on u.id = a.author_id
where a.id = ?`

func (q *Queries) GetArticle(ctx context.Context, id int64) (Article, error) {
	row := q.db.QueryRowContext(ctx, getArticle, id)
	var a Article
	err := row.Scan(&a.ID, &a.AuthorID, &a.Author, &a.Title, &a.Content)
	return a, err
}

const listArticles = `select a.id, a.author_id, u.username, a.title, a.content
from articles a
join users u on u.id = a.author_id
order by a.id desc`

func (q *Queries) ListArticles(ctx context.Context) ([]Article, error) {
	rows, err := q.db.QueryContext(ctx, listArticles)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Article
	for rows.Next() {
		var a Article
		err := rows.Scan(&a.ID, &a.AuthorID, &a.Author, &a.Title, &a.Content)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const isFavorited = `select exists(select 1 from favorites where article_id = ? and user_id = ?)`

type FavoriteParams struct {
	ArticleID int64
	UserID    int64
}

func (q *Queries) IsFavorited(ctx context.Context, arg FavoriteParams) (bool, error) {
	row := q.db.QueryRowContext(ctx, isFavorited, arg.ArticleID, arg.UserID)
	var exists bool
	err := row.Scan(&exists)
	return exists, err
}

const addFavorite = `insert into favorites (article_id, user_id) values (?, ?)`

func (q *Queries) AddFavorite(ctx context.Context, arg FavoriteParams) error {
	_, err := q.db.ExecContext(ctx, addFavorite, arg.ArticleID, arg.UserID)
	return err
}

const removeFavorite = `delete from favorites where article_id = ? and user_id = ?`

func (q *Queries) RemoveFavorite(ctx context.Context, arg FavoriteParams) error {
	_, err := q.db.ExecContext(ctx, removeFavorite, arg.ArticleID, arg.UserID)
	return err
}

const countFavorites = `select count(*) from favorites where article_id = ?`

func (q *Queries) CountFavorites(ctx context.Context, articleID int64) (int64, error) {
	row := q.db.QueryRowContext(ctx, countFavorites, articleID)
	var n int64
	err := row.Scan(&n)
	return n, err
}

const isFollowing = `select exists(select 1 from relations where follower_id = ? and followee_id = ?)`

type RelationParams struct {
	FollowerID int64
	FolloweeID int64
}

func (q *Queries) IsFollowing(ctx context.Context, arg RelationParams) (bool, error) {
	row := q.db.QueryRowContext(ctx, isFollowing, arg.FollowerID, arg.FolloweeID)
	var exists bool
	err := row.Scan(&exists)
	return exists, err
}

const addRelation = `insert into relations (follower_id, followee_id) values (?, ?)`

func (q *Queries) AddRelation(ctx context.Context, arg RelationParams) error {
	_, err := q.db.ExecContext(ctx, addRelation, arg.FollowerID, arg.FolloweeID)
	return err
}

const removeRelation = `delete from relations where follower_id = ? and followee_id = ?`

func (q *Queries) RemoveRelation(ctx context.Context, arg RelationParams) error {
	_, err := q.db.ExecContext(ctx, removeRelation, arg.FollowerID, arg.FolloweeID)
	return err
}

const countFollowers = `select count(*) from relations where followee_id = ?`

func (q *Queries) CountFollowers(ctx context.Context, followeeID int64) (int64, error) {
	row := q.db.QueryRowContext(ctx, countFollowers, followeeID)
	var n int64
	err := row.Scan(&n)
	return n, err
}

const countFollowees = `select count(*) from relations where follower_id = ?`

func (q *Queries) CountFollowees(ctx context.Context, followerID int64) (int64, error) {
	row := q.db.QueryRowContext(ctx, countFollowees, followerID)
	var n int64
	err := row.Scan(&n)
	return n, err
}

type PageParams struct {
	ID     int64
	Limit  int64
	Offset int64
}

const listArticlesByAuthor = `select a.id, a.author_id, u.username, a.title, a.content
from articles a
join users u on u.id = a.author_id
where a.author_id = ?
order by a.id desc
limit ? offset ?`

func (q *Queries) ListArticlesByAuthor(ctx context.Context, arg PageParams) ([]Article, error) {
	rows, err := q.db.QueryContext(ctx, listArticlesByAuthor, arg.ID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Article
	for rows.Next() {
		var a Article
		err := rows.Scan(&a.ID, &a.AuthorID, &a.Author, &a.Title, &a.Content)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listFavoriteArticles = `select a.id, a.author_id, u.username, a.title, a.content
from favorites f
join articles a on a.id = f.article_id
join users u on u.id = a.author_id
where f.user_id = ?
order by a.id desc
limit ? offset ?`

func (q *Queries) ListFavoriteArticles(ctx context.Context, arg PageParams) ([]Article, error) {
	rows, err := q.db.QueryContext(ctx, listFavoriteArticles, arg.ID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Article
	for rows.Next() {
		var a Article
		err := rows.Scan(&a.ID, &a.AuthorID, &a.Author, &a.Title, &a.Content)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listFollowees = `select u.username
from relations r
join users u on u.id = r.followee_id
where r.follower_id = ?
order by u.username
limit ? offset ?`

func (q *Queries) ListFollowees(ctx context.Context, arg PageParams) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listFollowees, arg.ID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []string
	for rows.Next() {
		var username string
		if err := rows.Scan(&username); err != nil {
			return nil, err
		}
		items = append(items, username)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listFollowers = `select u.username
from relations r
join users u on u.id = r.follower_id
where r.followee_id = ?
order by u.username
limit ? offset ?`

func (q *Queries) ListFollowers(ctx context.Context, arg PageParams) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listFollowers, arg.ID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []string
	for rows.Next() {
		var username string
		if err := rows.Scan(&username); err != nil {
			return nil, err
		}
		items = append(items, username)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
