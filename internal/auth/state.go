// Package auth provides authentication state management for the CLI.
// It handles login and logout flows and session validation, backed by
// secure credential storage in the OS keychain.
//
// The package provides both high-level authentication state management and
// low-level persistence operations. Authentication is token-based: the user
// supplies an API token at login and the token rides every backend request.
package auth

import (
	"context"
	"errors"
	"strings"

	"querypilot/cli/internal/keychain"
)

// IsLoggedIn reports whether the user is considered logged in.
func IsLoggedIn(ctx context.Context) (bool, error) {
	st, err := Load()
	if err != nil {
		return false, err
	}
	return st.LoggedIn, nil
}

// Login stores the API token in the keychain and marks the user logged in.
func Login(ctx context.Context, account, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("API token must not be empty")
	}
	km, err := keychain.GetManager()
	if err != nil {
		return err
	}
	if err := km.SaveAPIToken(token); err != nil {
		return err
	}
	return Save(State{LoggedIn: true, Account: account})
}

// Logout clears login state and removes stored secrets.
func Logout(ctx context.Context) error {
	km, err := keychain.GetManager()
	if err != nil {
		return err
	}
	return km.ClearAll()
}

// Token returns the stored API token, or an error when not logged in.
func Token(ctx context.Context) (string, error) {
	st, err := Load()
	if err != nil {
		return "", err
	}
	if !st.LoggedIn {
		return "", errors.New("not logged in; run 'querypilot login' first")
	}
	km, err := keychain.GetManager()
	if err != nil {
		return "", err
	}
	return km.LoadAPIToken()
}
