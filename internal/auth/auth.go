// Package auth provides authorization helpers for the board service.
//
// Authorizers supply bearer tokens to outbound realtime and REST calls.
// Validators check inbound tokens and are used by the local test service.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/boardsync/internal/board"
)

var ErrUnauthorized = fmt.Errorf("auth: unauthorized: %w", board.ErrAuthorization)

// Authorizer acquires the bearer token for one outbound call or connection attempt.
type Authorizer interface {
	Authorization(ctx context.Context) (string, error)
}

// StaticToken is a fixed shared token. It both authorizes outbound calls and
// validates inbound ones, which keeps development setups symmetric.
type StaticToken struct {
	Token string
}

func (s StaticToken) Authorization(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	token := strings.TrimSpace(s.Token)
	if token == "" {
		return "", ErrUnauthorized
	}
	return token, nil
}

func (s StaticToken) Validate(token string) error {
	if s.Token == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(s.Token), []byte(token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// FuncAuthorizer adapts a function into an Authorizer.
type FuncAuthorizer func(ctx context.Context) (string, error)

func (f FuncAuthorizer) Authorization(ctx context.Context) (string, error) {
	return f(ctx)
}

// Validator validates an authentication token.
type Validator interface {
	Validate(token string) error
}

// FuncValidator adapts a function into a Validator.
type FuncValidator func(token string) error

func (f FuncValidator) Validate(token string) error {
	return f(token)
}

// BearerToken strips the "Bearer " scheme from an Authorization header value.
func BearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	const scheme = "bearer "
	if len(header) < len(scheme) || !strings.EqualFold(header[:len(scheme)], scheme) {
		return "", ErrUnauthorized
	}
	token := strings.TrimSpace(header[len(scheme):])
	if token == "" {
		return "", ErrUnauthorized
	}
	return token, nil
}

// IsAuthorizationError reports whether err belongs to the authorization class.
func IsAuthorizationError(err error) bool {
	return errors.Is(err, board.ErrAuthorization)
}
