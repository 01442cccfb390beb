package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/yoockh/civicvoice/internal/models"
	"github.com/yoockh/civicvoice/internal/utils"
)

// HTTP posts complaints as JSON.
type HTTP struct {
	URL    string
	Client *http.Client
}

func NewHTTP(url string, timeout time.Duration) *HTTP {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTP{URL: url, Client: &http.Client{Timeout: timeout}}
}

// Deliver makes a single attempt. Any non-2xx answer is a SINK_DELIVERY error.
func (h *HTTP) Deliver(ctx context.Context, c models.Complaint) error {
	const op = "sink.HTTP.Deliver"

	body, err := json.Marshal(c)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "encode complaint", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(body))
	if err != nil {
		return utils.E(utils.CodeInternal, op, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return utils.E(utils.CodeSinkDelivery, op, "post complaint", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		const maxBytes = 4 << 10
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
		return utils.E(utils.CodeSinkDelivery, op, fmt.Sprintf("sink answered %d", resp.StatusCode), fmt.Errorf("%s", bytes.TrimSpace(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
