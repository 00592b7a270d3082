// Package notify tells the approver that a new batch is ready.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Nzyazin/payagent/internal/core/logger"
	"github.com/Nzyazin/payagent/internal/core/usecase"
)

const summaryLines = 5

// Webhook posts batch summaries as JSON to a chat or messaging relay.
type Webhook struct {
	URL  string
	HTTP *http.Client
	log  logger.Logger
}

func NewWebhook(url string, log logger.Logger) *Webhook {
	return &Webhook{
		URL:  url,
		HTTP: &http.Client{Timeout: 10 * time.Second},
		log:  log,
	}
}

type message struct {
	BatchID string `json:"batch_id"`
	UserID  string `json:"user_id"`
	Count   int    `json:"count"`
	Total   string `json:"total"`
	Text    string `json:"text"`
}

func (w *Webhook) NotifyBatch(ctx context.Context, summary usecase.BatchSummary) error {
	if w.URL == "" {
		w.log.Debug("Notification webhook not configured", logger.StringField("batch_id", summary.BatchID))
		return nil
	}

	body, err := json.Marshal(message{
		BatchID: summary.BatchID,
		UserID:  summary.Owner,
		Count:   len(summary.Transactions),
		Total:   Total(summary).String(),
		Text:    FormatSummary(summary),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := w.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("send batch summary: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		return fmt.Errorf("notification webhook returned %d", res.StatusCode)
	}
	w.log.Info("Batch summary sent", logger.StringField("batch_id", summary.BatchID))
	return nil
}

func Total(summary usecase.BatchSummary) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range summary.Transactions {
		total = total.Add(tx.Amount)
	}
	return total
}

// FormatSummary renders the message body: a headline with the count and
// total, the first few transactions and a pointer to the dashboard.
func FormatSummary(summary usecase.BatchSummary) string {
	txs := summary.Transactions

	var lines []string
	for i, tx := range txs {
		if i == summaryLines {
			break
		}
		lines = append(lines, fmt.Sprintf("- %s: ₹%s", tx.Vendor, tx.Amount.String()))
	}
	list := strings.Join(lines, "\n")
	if len(txs) > summaryLines {
		list += fmt.Sprintf("\n... and %d more.", len(txs)-summaryLines)
	}

	var b strings.Builder
	b.WriteString("🧾 *Batch Processed*\n")
	fmt.Fprintf(&b, "%d Transactions found. Total Value: ₹%s\n\n", len(txs), Total(summary).String())
	if list != "" {
		b.WriteString(list)
		b.WriteString("\n\n")
	}
	b.WriteString("Please log in to the dashboard to approve and pay.")
	return b.String()
}
