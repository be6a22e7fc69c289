package devserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"blogtoggle/internal/devserver/db"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNoUser    = errors.New("user does not exist")
	ErrNoArticle = errors.New("article does not exist")
)

// Store is the blog's data: users, articles, favorites and follow relations.
type Store struct {
	qry    *db.Queries
	makeTx db.MakeTx
}

func NewStore(database *sql.DB) Store {
	return Store{
		qry:    db.New(database),
		makeTx: db.NewMakeTx(database),
	}
}

func (s Store) CreateUser(ctx context.Context, username, password string) (int64, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return 0, err
	}
	return s.qry.CreateUser(ctx, db.CreateUserParams{
		Username:     username,
		PasswordHash: string(hash),
	})
}

func (s Store) User(ctx context.Context, username string) (db.User, error) {
	user, err := s.qry.GetUser(ctx, username)
	if errors.Is(err, sql.ErrNoRows) {
		return db.User{}, ErrNoUser
	}
	return user, err
}

// Authenticate returns the user if password matches, ErrNoUser otherwise so
// that a wrong password and an unknown user look the same to the caller.
func (s Store) Authenticate(ctx context.Context, username, password string) (db.User, error) {
	user, err := s.User(ctx, username)
	if err != nil {
		return db.User{}, err
	}
	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password))
	if err != nil {
		return db.User{}, ErrNoUser
	}
	return user, nil
}

func (s Store) CreateArticle(ctx context.Context, author, title, content string) (int64, error) {
	user, err := s.User(ctx, author)
	if err != nil {
		return 0, err
	}
	return s.qry.CreateArticle(ctx, db.CreateArticleParams{
		AuthorID: user.ID,
		Title:    title,
		Content:  content,
	})
}

func (s Store) Article(ctx context.Context, id int64) (db.Article, error) {
	article, err := s.qry.GetArticle(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return db.Article{}, ErrNoArticle
	}
	return article, err
}

func (s Store) Articles(ctx context.Context) ([]db.Article, error) {
	return s.qry.ListArticles(ctx)
}

func (s Store) IsFavorited(ctx context.Context, articleID, userID int64) (bool, error) {
	return s.qry.IsFavorited(ctx, db.FavoriteParams{ArticleID: articleID, UserID: userID})
}

func (s Store) IsFollowing(ctx context.Context, followerID, followeeID int64) (bool, error) {
	return s.qry.IsFollowing(ctx, db.RelationParams{FollowerID: followerID, FolloweeID: followeeID})
}

// ToggleFavorite adds the favorite if it is missing and removes it otherwise,
// it returns whether the article is favorited afterwards.
func (s Store) ToggleFavorite(ctx context.Context, articleID, userID int64) (favorited bool, err error) {
	tx, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		return false, err
	}
	defer discard()

	params := db.FavoriteParams{ArticleID: articleID, UserID: userID}
	exists, err := tx.IsFavorited(ctx, params)
	if err != nil {
		return false, err
	}
	if exists {
		err = tx.RemoveFavorite(ctx, params)
	} else {
		err = tx.AddFavorite(ctx, params)
	}
	if err != nil {
		return false, fmt.Errorf("toggle favorite: %w", err)
	}
	return !exists, commit()
}

// ToggleFollow is ToggleFavorite for follow relations. Following yourself is
// not rejected here, the profile pages just never offer the button for it.
func (s Store) ToggleFollow(ctx context.Context, followerID, followeeID int64) (following bool, err error) {
	tx, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		return false, err
	}
	defer discard()

	params := db.RelationParams{FollowerID: followerID, FolloweeID: followeeID}
	exists, err := tx.IsFollowing(ctx, params)
	if err != nil {
		return false, err
	}
	if exists {
		err = tx.RemoveRelation(ctx, params)
	} else {
		err = tx.AddRelation(ctx, params)
	}
	if err != nil {
		return false, fmt.Errorf("toggle follow: %w", err)
	}
	return !exists, commit()
}

func (s Store) CountFavorites(ctx context.Context, articleID int64) (int64, error) {
	return s.qry.CountFavorites(ctx, articleID)
}

func (s Store) CountFollowers(ctx context.Context, userID int64) (int64, error) {
	return s.qry.CountFollowers(ctx, userID)
}

func (s Store) CountFollowees(ctx context.Context, userID int64) (int64, error) {
	return s.qry.CountFollowees(ctx, userID)
}

const (
	ArticlesPerPage = 5
	UsersPerPage    = 8
)

// listPage runs list for the 1-based page of the given size, it fetches one
// extra row to tell whether there is a next page.
func listPage[T any](
	ctx context.Context,
	list func(context.Context, db.PageParams) ([]T, error),
	id int64, page, size int,
) (items []T, more bool, err error) {
	if page < 1 {
		page = 1
	}
	items, err = list(ctx, db.PageParams{
		ID:     id,
		Limit:  int64(size + 1),
		Offset: int64((page - 1) * size),
	})
	if err != nil {
		return nil, false, err
	}
	if len(items) > size {
		return items[:size], true, nil
	}
	return items, false, nil
}

// PostedArticles lists the articles userID wrote, newest first.
func (s Store) PostedArticles(ctx context.Context, userID int64, page int) ([]db.Article, bool, error) {
	return listPage(ctx, s.qry.ListArticlesByAuthor, userID, page, ArticlesPerPage)
}

// FavoriteArticles lists the articles userID favorited, newest first.
func (s Store) FavoriteArticles(ctx context.Context, userID int64, page int) ([]db.Article, bool, error) {
	return listPage(ctx, s.qry.ListFavoriteArticles, userID, page, ArticlesPerPage)
}

// Followees lists the usernames userID follows, by name.
func (s Store) Followees(ctx context.Context, userID int64, page int) ([]string, bool, error) {
	return listPage(ctx, s.qry.ListFollowees, userID, page, UsersPerPage)
}

// Followers lists the usernames following userID, by name.
func (s Store) Followers(ctx context.Context, userID int64, page int) ([]string, bool, error) {
	return listPage(ctx, s.qry.ListFollowers, userID, page, UsersPerPage)
}

// Seed fills an empty store with the users and article the blog's own tests
// use.
func (s Store) Seed(ctx context.Context) error {
	seedUsers := []struct{ username, password string }{
		{"fav_view_tester", "favtester"},
		{"author", "auth0r1234"},
	}
	for _, u := range seedUsers {
		_, err := s.CreateUser(ctx, u.username, u.password)
		if err != nil {
			return fmt.Errorf("seed user %s: %w", u.username, err)
		}
	}
	_, err := s.CreateArticle(ctx, "author", "test_title", "test_content")
	if err != nil {
		return fmt.Errorf("seed article: %w", err)
	}
	return nil
}
