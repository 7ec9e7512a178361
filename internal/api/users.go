package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Tyrowin/gochat-client/internal/chat"
)

const (
	profilePath  = "/api/v1/users/profile"
	loginPath    = "/api/v1/users/login"
	registerPath = "/api/v1/users/register"
	logoutPath   = "/api/v1/users/logout"
)

// ErrNoUser is returned when a successful response does not identify a user.
var ErrNoUser = errors.New("response carries no user")

// Credentials is the body of login and registration requests.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// userEnvelope matches both {"user": ...} and {"data": {"user": ...}}.
type userEnvelope struct {
	User *chat.User `json:"user"`
	Data struct {
		User *chat.User `json:"user"`
	} `json:"data"`
}

func decodeUser(body []byte) (chat.User, error) {
	var env userEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return chat.User{}, fmt.Errorf("decode user: %w", err)
	}
	user := env.Data.User
	if user == nil {
		user = env.User
	}
	if user == nil || user.Username == "" {
		return chat.User{}, ErrNoUser
	}
	return *user, nil
}

// Profile asks who the cookie jar's session belongs to.
func (c *Client) Profile(ctx context.Context) (chat.User, error) {
	req, err := c.newRequest(ctx, http.MethodGet, profilePath, nil)
	if err != nil {
		return chat.User{}, err
	}
	body, err := c.do(req, "profile")
	if err != nil {
		return chat.User{}, err
	}
	return decodeUser(body)
}

// Login posts credentials; on success the backend sets the session cookie.
func (c *Client) Login(ctx context.Context, creds Credentials) (chat.User, error) {
	return c.postCredentials(ctx, loginPath, "login", creds)
}

// Register creates an account and, like Login, returns its user.
func (c *Client) Register(ctx context.Context, creds Credentials) (chat.User, error) {
	return c.postCredentials(ctx, registerPath, "register", creds)
}

func (c *Client) postCredentials(ctx context.Context, path, op string, creds Credentials) (chat.User, error) {
	req, err := c.newRequest(ctx, http.MethodPost, path, creds)
	if err != nil {
		return chat.User{}, err
	}
	body, err := c.do(req, op)
	if err != nil {
		return chat.User{}, err
	}
	return decodeUser(body)
}

// Logout asks the backend to invalidate the session cookie.
func (c *Client) Logout(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodPost, logoutPath, nil)
	if err != nil {
		return err
	}
	_, err = c.do(req, "logout")
	return err
}
