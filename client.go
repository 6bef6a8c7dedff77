package walletauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Challenge is the server-issued login challenge
type Challenge struct {
	Address string `json:"-"`
	Nonce   string `json:"nonce"`
	Message string `json:"message"`
}

// Account describes the account a session was issued for
type Account struct {
	Address     string `json:"address"`
	LoginMethod string `json:"loginMethod"`
}

// Tokens are the credentials returned by a login or refresh
type Tokens struct {
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
	TokenType    string        `json:"tokenType"`
	ExpiresIn    time.Duration `json:"expiresIn"`
	Account      *Account      `json:"account,omitempty"`
}

type nonceRequest struct {
	Address string `json:"address"`
}

type walletLoginRequest struct {
	WalletAddress string `json:"walletAddress"`
	Signature     string `json:"signature"`
	Message       string `json:"message"`
	Nonce         string `json:"nonce"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type loginResponse struct {
	Result struct {
		Token        string   `json:"token"`
		RefreshToken string   `json:"refreshToken"`
		TokenType    string   `json:"tokenType"`
		ExpiresIn    int64    `json:"expiresIn"`
		Account      *Account `json:"account"`
	} `json:"result"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// maxResponseSize caps how much of a response body is read
const maxResponseSize = 1 << 20

// HTTPClient talks to a wallet authentication server on behalf of a Wallet
type HTTPClient struct {
	baseURL string
	wallet  Wallet
	http    *http.Client
}

var _ Client = (*HTTPClient)(nil)

// ClientOption configures an HTTPClient
type ClientOption func(*HTTPClient)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(c *http.Client) ClientOption {
	return func(h *HTTPClient) {
		h.http = c
	}
}

// NewClient creates a client for the server at baseURL
func NewClient(baseURL string, wallet Wallet, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		wallet:  wallet,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Challenge requests a challenge for the wallet's current address
func (c *HTTPClient) Challenge(ctx context.Context) (*Challenge, error) {
	address, err := c.currentAddress()
	if err != nil {
		return nil, err
	}

	var challenge Challenge
	status, err := c.post(ctx, "/auth/get-nonce", nonceRequest{Address: address}, &challenge)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
	case http.StatusBadRequest:
		return nil, ErrInvalidAddress
	default:
		return nil, fmt.Errorf("get-nonce: unexpected status %d", status)
	}

	challenge.Address = address
	return &challenge, nil
}

// Login signs the server's message verbatim and submits it
func (c *HTTPClient) Login(ctx context.Context) (*Tokens, error) {
	challenge, err := c.Challenge(ctx)
	if err != nil {
		return nil, err
	}

	signature, err := c.wallet.Sign(ctx, challenge.Message)
	if err != nil {
		return nil, err
	}

	var resp loginResponse
	status, err := c.post(ctx, "/auth/wallet-login", walletLoginRequest{
		WalletAddress: challenge.Address,
		Signature:     signature,
		Message:       challenge.Message,
		Nonce:         challenge.Nonce,
	}, &resp)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
		return resp.tokens(), nil
	case http.StatusUnauthorized:
		return nil, ErrAuthenticationFailed
	default:
		return nil, fmt.Errorf("wallet-login: unexpected status %d", status)
	}
}

// Refresh rotates refreshToken
func (c *HTTPClient) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	var resp loginResponse
	status, err := c.post(ctx, "/auth/refresh", refreshRequest{RefreshToken: refreshToken}, &resp)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
		return resp.tokens(), nil
	case http.StatusBadRequest, http.StatusUnauthorized:
		return nil, ErrSessionInvalid
	default:
		return nil, fmt.Errorf("refresh: unexpected status %d", status)
	}
}

// Logout revokes refreshToken
func (c *HTTPClient) Logout(ctx context.Context, refreshToken string) error {
	status, err := c.post(ctx, "/auth/logout", refreshRequest{RefreshToken: refreshToken}, nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK:
		return nil
	case http.StatusBadRequest:
		return ErrSessionInvalid
	default:
		return fmt.Errorf("logout: unexpected status %d", status)
	}
}

func (c *HTTPClient) currentAddress() (string, error) {
	if c.wallet == nil || !c.wallet.IsAvailable() {
		return "", ErrWalletNotAvailable
	}
	address, ok := c.wallet.CurrentAddress()
	if !ok {
		return "", ErrWalletNotConnected
	}
	return address, nil
}

// post sends body as JSON and decodes a 200 response into out
func (c *HTTPClient) post(ctx context.Context, path string, body, out any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		if json.Unmarshal(raw, &e) == nil && e.Error != "" && resp.StatusCode >= http.StatusInternalServerError {
			return 0, fmt.Errorf("%s: server error %d: %s", path, resp.StatusCode, e.Error)
		}
		return resp.StatusCode, nil
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return 0, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func (r *loginResponse) tokens() *Tokens {
	return &Tokens{
		AccessToken:  r.Result.Token,
		RefreshToken: r.Result.RefreshToken,
		TokenType:    r.Result.TokenType,
		ExpiresIn:    time.Duration(r.Result.ExpiresIn) * time.Second,
		Account:      r.Result.Account,
	}
}
