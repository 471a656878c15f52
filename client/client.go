// Package client is the HTTP implementation of the authority API used by
// the sync engine and the CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Dosada05/results-engine/models"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("request not authorized")
	ErrServer       = errors.New("server error")
)

// Client talks to one results authority.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New builds a client for the given base URL. The token, if set, is sent as
// a bearer credential on every request.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type resultsPayload struct {
	Rounds  []models.Round `json:"rounds"`
	Version int64          `json:"version"`
}

type statusPayload struct {
	ResultsStatus models.ResultsStatus `json:"results_status"`
}

type batchPayload struct {
	Ops []models.Op `json:"ops"`
}

// GetGame fetches one game's metadata.
func (c *Client) GetGame(ctx context.Context, gameID string) (*models.Game, error) {
	var game models.Game
	if err := c.do(ctx, http.MethodGet, "/games/"+gameID, nil, nil, &game); err != nil {
		return nil, err
	}
	return &game, nil
}

// GetGameResults fetches the authoritative results tree and head version.
func (c *Client) GetGameResults(ctx context.Context, gameID string) (*models.ResultsTree, int64, error) {
	var payload resultsPayload
	if err := c.do(ctx, http.MethodGet, "/results/game/"+gameID, nil, nil, &payload); err != nil {
		return nil, 0, err
	}
	return &models.ResultsTree{Rounds: payload.Rounds}, payload.Version, nil
}

// BatchOps submits a batch of operations. The idempotency key dedupes
// retried batches on the server side. A 409 still carries a decodable
// result: the rejected ops come back as conflicts, not as an error.
func (c *Client) BatchOps(ctx context.Context, gameID, idempotencyKey string, ops []models.Op) (*models.BatchResult, error) {
	encoded, err := json.Marshal(batchPayload{Ops: ops})
	if err != nil {
		return nil, fmt.Errorf("failed to encode op batch: %w", err)
	}
	url := c.baseURL + "/results/game/" + gameID + "/ops:batch"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to build batch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Idempotency-Key", idempotencyKey)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("batch request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusConflict {
		return nil, checkStatus(resp)
	}
	var result models.BatchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode batch result: %w", err)
	}
	return &result, nil
}

// SetResultsStatus transitions the game's results lifecycle.
func (c *Client) SetResultsStatus(ctx context.Context, gameID string, status models.ResultsStatus) (*models.Game, error) {
	var game models.Game
	err := c.do(ctx, http.MethodPut, "/results/game/"+gameID+"/status", nil, statusPayload{ResultsStatus: status}, &game)
	if err != nil {
		return nil, err
	}
	return &game, nil
}

// RecalculateOutcomes asks the server to rebuild outcome rollups.
func (c *Client) RecalculateOutcomes(ctx context.Context, gameID string) error {
	return c.do(ctx, http.MethodPost, "/results/game/"+gameID+"/recalculate", nil, nil, nil)
}

// DeleteGameResults removes the game's results tree entirely.
func (c *Client) DeleteGameResults(ctx context.Context, gameID string) error {
	return c.do(ctx, http.MethodDelete, "/results/game/"+gameID, nil, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, headers map[string]string, in, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

type errorBody struct {
	Error string `json:"error"`
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}
	message := resp.Status
	var body errorBody
	if raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096)); err == nil {
		if json.Unmarshal(raw, &body) == nil && body.Error != "" {
			message = body.Error
		}
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, message)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, message)
	default:
		return fmt.Errorf("%w: %s", ErrServer, message)
	}
}
