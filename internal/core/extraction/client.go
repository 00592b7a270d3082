// Package extraction calls the external service that reads invoices.
package extraction

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

	"github.com/Nzyazin/payagent/internal/core/logger"
	"github.com/Nzyazin/payagent/internal/core/models"
)

var ErrNoEndpoint = errors.New("extraction endpoint is not configured")

// Client posts an invoice path to the extraction service and decodes the
// candidate transactions it returns.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	log     logger.Logger
}

func NewClient(baseURL string, log logger.Logger) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 2 * time.Minute},
		log:     log,
	}
}

type extractRequest struct {
	FilePath string `json:"file_path"`
}

func (c *Client) Extract(ctx context.Context, filePath string) ([]models.Candidate, error) {
	if c.BaseURL == "" {
		return nil, ErrNoEndpoint
	}

	body, err := json.Marshal(extractRequest{FilePath: filePath})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/extract", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", filePath, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read extraction response: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extraction service returned %d: %s", res.StatusCode, strings.TrimSpace(string(raw)))
	}

	candidates, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	c.log.Info("Invoice extracted",
		logger.StringField("file", filePath),
		logger.IntField("candidates", len(candidates)))
	return candidates, nil
}

// Decode reads {"transactions": [...]}. A bare transaction object is accepted
// as a list of one.
func Decode(raw []byte) ([]models.Candidate, error) {
	var envelope struct {
		Transactions []models.Candidate `json:"transactions"`
		Vendor       *string            `json:"vendor"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode extraction response: %w", err)
	}
	if len(envelope.Transactions) > 0 || envelope.Vendor == nil {
		return envelope.Transactions, nil
	}

	var single models.Candidate
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, fmt.Errorf("decode extraction response: %w", err)
	}
	return []models.Candidate{single}, nil
}
