package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/danmuck/boardsync/internal/board"
	"github.com/danmuck/boardsync/internal/testutil/testlog"
)

func TestStaticTokenValidate(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name    string
		stored  string
		input   string
		wantErr error
	}{
		{name: "empty token denied", stored: "", input: "abc", wantErr: ErrUnauthorized},
		{name: "mismatched token denied", stored: "abc", input: "xyz", wantErr: ErrUnauthorized},
		{name: "matching token accepted", stored: "abc", input: "abc", wantErr: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := (StaticToken{Token: tc.stored}).Validate(tc.input)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestStaticTokenAuthorization(t *testing.T) {
	testlog.Start(t)
	token, err := (StaticToken{Token: " abc "}).Authorization(context.Background())
	if err != nil || token != "abc" {
		t.Fatalf("unexpected token=%q err=%v", token, err)
	}
	_, err = (StaticToken{}).Authorization(context.Background())
	if !errors.Is(err, board.ErrAuthorization) {
		t.Fatalf("expected authorization class error, got %v", err)
	}
	if !IsAuthorizationError(err) {
		t.Fatalf("expected IsAuthorizationError true")
	}
}

func TestFuncAdapters(t *testing.T) {
	testlog.Start(t)
	validator := FuncValidator(func(token string) error {
		if token != "ok" {
			return ErrUnauthorized
		}
		return nil
	})
	if err := validator.Validate("ok"); err != nil {
		t.Fatalf("expected ok token accepted, got %v", err)
	}
	if err := validator.Validate("bad"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	authorizer := FuncAuthorizer(func(context.Context) (string, error) { return "t0k", nil })
	if token, _ := authorizer.Authorization(context.Background()); token != "t0k" {
		t.Fatalf("unexpected token %q", token)
	}
}

func TestBearerToken(t *testing.T) {
	testlog.Start(t)
	if token, err := BearerToken("Bearer abc"); err != nil || token != "abc" {
		t.Fatalf("unexpected token=%q err=%v", token, err)
	}
	if token, err := BearerToken("bearer  xyz "); err != nil || token != "xyz" {
		t.Fatalf("unexpected token=%q err=%v", token, err)
	}
	for _, bad := range []string{"", "Basic abc", "Bearer ", "abc"} {
		if _, err := BearerToken(bad); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("BearerToken(%q) expected unauthorized, got %v", bad, err)
		}
	}
}
