package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Hussein135-coder/souriana-extract-bot/config"
	"github.com/Hussein135-coder/souriana-extract-bot/model"
	"github.com/Hussein135-coder/souriana-extract-bot/pkg/logger"
)

// LoginStatus is the session state shown to the operator via /status.
type LoginStatus string

const (
	LoginNotAttempted LoginStatus = "not_attempted"
	LoginRetrying     LoginStatus = "retrying"
	LoginSuccess      LoginStatus = "success"
	LoginFailed       LoginStatus = "failed"
)

// WebsiteService owns the backend session: it logs in, caches the bearer
// token for the process lifetime, and submits confirmed records. A failed
// login is recoverable; the operator decides what happens next.
type WebsiteService struct {
	config     *config.WebsiteConfig
	httpClient *http.Client

	mu         sync.Mutex
	token      string
	status     LoginStatus
	retryCount int

	// Retry schedule and per-call timeouts. Exposed so tests can tighten them.
	MaxRetries    int
	BaseDelay     time.Duration
	LoginTimeout  time.Duration
	SubmitTimeout time.Duration
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	JWT string `json:"jwt"`
}

func NewWebsiteService(cfg *config.WebsiteConfig) *WebsiteService {
	return &WebsiteService{
		config:        cfg,
		httpClient:    &http.Client{},
		status:        LoginNotAttempted,
		MaxRetries:    3,
		BaseDelay:     time.Second,
		LoginTimeout:  10 * time.Second,
		SubmitTimeout: 15 * time.Second,
	}
}

// Status returns the current session state.
func (s *WebsiteService) Status() LoginStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// HasToken reports whether a bearer token is currently cached.
func (s *WebsiteService) HasToken() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != ""
}

// Login obtains a bearer token. A cached token is returned without a
// network call unless force is set. Otherwise up to MaxRetries attempts are
// made with exponential backoff; exhausting them marks the session FAILED
// and returns an error, which is recoverable via a later forced login.
func (s *WebsiteService) Login(ctx context.Context, force bool) (string, error) {
	s.mu.Lock()
	if s.token != "" && !force {
		token := s.token
		s.mu.Unlock()
		return token, nil
	}
	s.status = LoginRetrying
	s.retryCount = 0
	s.mu.Unlock()

	for attempt := 1; attempt <= s.MaxRetries; attempt++ {
		logger.Info(ctx, "attempting website login", "attempt", attempt, "max_retries", s.MaxRetries)

		token, err := s.attemptLogin(ctx)
		if err == nil {
			s.mu.Lock()
			s.token = token
			s.status = LoginSuccess
			s.retryCount = 0
			s.mu.Unlock()
			logger.Info(ctx, "website login successful", "token_expires_at", peekExpiry(token))
			return token, nil
		}

		logger.Warn(ctx, "website login failed", "attempt", attempt, "error", err)
		if attempt < s.MaxRetries {
			s.mu.Lock()
			s.retryCount = attempt
			s.mu.Unlock()

			delay := s.BaseDelay << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				s.mu.Lock()
				s.status = LoginFailed
				s.mu.Unlock()
				return "", ctx.Err()
			}
		}
	}

	s.mu.Lock()
	s.status = LoginFailed
	s.mu.Unlock()
	return "", fmt.Errorf("login failed after %d attempts", s.MaxRetries)
}

func (s *WebsiteService) attemptLogin(ctx context.Context) (string, error) {
	reqBody, err := json.Marshal(loginRequest{
		Username: s.config.Username,
		Password: s.config.Password,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal login request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.LoginTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, s.config.LoginURL, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send login request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read login response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login returned status %d: %s", resp.StatusCode, body)
	}

	var result loginResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse login response: %w", err)
	}
	if result.JWT == "" {
		return "", fmt.Errorf("login response contained no jwt")
	}

	return result.JWT, nil
}

// Submit posts a confirmed record with the current bearer token. A missing
// token triggers a login first. A 401 response forces exactly one re-login
// and one retry of the submission; a second 401 fails. Every failure
// surfaces as an error, never a panic.
func (s *WebsiteService) Submit(ctx context.Context, record model.Record) (map[string]any, error) {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()

	if token == "" {
		var err error
		token, err = s.Login(ctx, false)
		if err != nil {
			return nil, fmt.Errorf("cannot submit data: %w", err)
		}
	}

	payload, statusCode, err := s.postData(ctx, token, record)
	if err == nil {
		return payload, nil
	}

	if statusCode == http.StatusUnauthorized {
		logger.Info(ctx, "token expired, logging in again")
		newToken, loginErr := s.Login(ctx, true)
		if loginErr != nil {
			return nil, fmt.Errorf("cannot submit data after token expiration: %w", loginErr)
		}

		payload, _, err = s.postData(ctx, newToken, record)
		if err != nil {
			return nil, fmt.Errorf("submit retry failed: %w", err)
		}
		return payload, nil
	}

	return nil, err
}

func (s *WebsiteService) postData(ctx context.Context, token string, record model.Record) (map[string]any, int, error) {
	reqBody, err := json.Marshal(map[string]any{"data": record})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal record: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.SubmitTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, s.config.DataURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to send record: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read submit response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, fmt.Errorf("submit returned status %d: %s", resp.StatusCode, body)
	}

	payload := map[string]any{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, resp.StatusCode, fmt.Errorf("failed to parse submit response: %w", err)
		}
	}
	return payload, resp.StatusCode, nil
}

// peekExpiry reads the expiry claim off a backend-issued token without
// verifying the signature (the signing key belongs to the backend). Used
// for logging only; the 401 path is what actually detects expiry.
func peekExpiry(token string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "unknown"
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return "unknown"
	}
	return exp.Time.Format(time.RFC3339)
}
