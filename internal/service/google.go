package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const googleTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"

// GoogleProfile is the identity Google vouches for, from either an ID token
// or the userinfo endpoint.
type GoogleProfile struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// GoogleTokenVerifier checks ID tokens issued to the mobile app.
type GoogleTokenVerifier struct {
	clientID string
	endpoint string
	client   *http.Client
}

func NewGoogleTokenVerifier(clientID string) *GoogleTokenVerifier {
	return &GoogleTokenVerifier{
		clientID: clientID,
		endpoint: googleTokenInfoURL,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type tokenInfo struct {
	Sub           string `json:"sub"`
	Aud           string `json:"aud"`
	Email         string `json:"email"`
	EmailVerified string `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func (v *GoogleTokenVerifier) Verify(ctx context.Context, idToken string) (*GoogleProfile, error) {
	if v.clientID == "" {
		return nil, fmt.Errorf("%w: google sign-in not configured", ErrInvalidGoogleToken)
	}
	if idToken == "" {
		return nil, ErrInvalidGoogleToken
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.endpoint+"?"+url.Values{"id_token": {idToken}}.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tokeninfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, ErrInvalidGoogleToken
	}
	var info tokenInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&info); err != nil {
		return nil, fmt.Errorf("tokeninfo: %w", err)
	}
	if info.Aud != v.clientID || info.Sub == "" {
		return nil, fmt.Errorf("%w: audience mismatch", ErrInvalidGoogleToken)
	}
	if info.EmailVerified != "true" || info.Email == "" {
		return nil, fmt.Errorf("%w: email not verified", ErrInvalidGoogleToken)
	}
	return &GoogleProfile{ID: info.Sub, Email: info.Email, Name: info.Name, Picture: info.Picture}, nil
}
