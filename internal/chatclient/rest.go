package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/SCORPIA2004/CampusConnect/internal/protocol"
)

// HTTPError is a non 2xx answer from the REST API.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// Register creates an account.
func Register(ctx context.Context, baseURL string, body protocol.RegisterRequest) (protocol.Profile, error) {
	var p protocol.Profile
	err := doJSON(ctx, http.DefaultClient, http.MethodPost, baseURL+"/users", "", body, &p)
	return p, err
}

// Login exchanges credentials for a token.
func Login(ctx context.Context, baseURL string, body protocol.LoginRequest) (protocol.LoginResponse, error) {
	var res protocol.LoginResponse
	err := doJSON(ctx, http.DefaultClient, http.MethodPost, baseURL+"/auth/login", "", body, &res)
	return res, err
}

func lookupUser(ctx context.Context, hc *http.Client, baseURL, token, email string) (protocol.ProfileStatus, error) {
	target := baseURL + "/users"
	if email != "" {
		target += "?email=" + url.QueryEscape(email)
	}
	var p protocol.ProfileStatus
	err := doJSON(ctx, hc, http.MethodGet, target, token, nil, &p)
	return p, err
}

func fetchChats(ctx context.Context, hc *http.Client, baseURL, token string) ([]protocol.SessionView, error) {
	var views []protocol.SessionView
	err := doJSON(ctx, hc, http.MethodGet, baseURL+"/chats", token, nil, &views)
	return views, err
}

func doJSON(ctx context.Context, hc *http.Client, method, target, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &HTTPError{Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, target, err)
	}
	return nil
}
