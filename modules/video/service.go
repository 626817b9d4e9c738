package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"scenergy-server/modules/common/config"
)

const (
	initialPollDelay = 2 * time.Second
	maxPollDelay     = 30 * time.Second
	pollCeiling      = 10 * time.Minute
)

// Service submits video renders to the external provider and polls the
// resulting long-running operation with exponential backoff.
type Service struct {
	endpoint string
	apiKey   string
	client   *http.Client

	pollInitial time.Duration
	pollMax     time.Duration
	pollCeiling time.Duration
}

func NewService(cfg *config.Config) *Service {
	return &Service{
		endpoint:    cfg.VideoAPIEndpoint,
		apiKey:      cfg.VideoAPIKey,
		client:      &http.Client{Timeout: 120 * time.Second},
		pollInitial: initialPollDelay,
		pollMax:     maxPollDelay,
		pollCeiling: pollCeiling,
	}
}

// Submit starts a render and returns the provider's operation id.
func (s *Service) Submit(ctx context.Context, req *VideoRequest) (string, error) {
	if req.Duration == 0 {
		req.Duration = 5
	}

	// Await is local delivery semantics, not part of the provider contract.
	payload := *req
	payload.Await = false

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal video request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/v1/videos", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to call video API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("video API error (status %d): %s", resp.StatusCode, string(raw))
	}

	var parsed submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode submit response: %w", err)
	}

	log.Printf("🎬 Video operation submitted: %s", parsed.OperationID)
	return parsed.OperationID, nil
}

// Await polls the operation until it terminates. Backoff starts at 2s,
// doubles up to 30s, and the whole wait is capped at 10 minutes.
func (s *Service) Await(ctx context.Context, operationID string) (*Operation, error) {
	deadline := time.Now().Add(s.pollCeiling)
	delay := s.pollInitial

	for {
		op, err := s.Poll(ctx, operationID)
		if err != nil {
			return nil, err
		}
		if op.Status == "completed" || op.Status == "error" {
			log.Printf("🏁 Video operation %s finished: %s", operationID, op.Status)
			return op, nil
		}

		if time.Now().Add(delay).After(deadline) {
			return nil, fmt.Errorf("video operation %s timed out after %s", operationID, s.pollCeiling)
		}

		log.Printf("🔄 Video operation %s still %s, next poll in %s", operationID, op.Status, delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		delay *= 2
		if delay > s.pollMax {
			delay = s.pollMax
		}
	}
}

// Poll fetches the operation's current state once.
func (s *Service) Poll(ctx context.Context, operationID string) (*Operation, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"/v1/videos/"+operationID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create poll request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to poll operation %s: %w", operationID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("poll failed (status %d): %s", resp.StatusCode, string(raw))
	}

	var parsed pollResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode poll response: %w", err)
	}

	return &Operation{
		ID:       operationID,
		Status:   parsed.Status,
		VideoURL: parsed.VideoURL,
		Error:    parsed.Error,
	}, nil
}
