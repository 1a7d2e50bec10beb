// Package notify posts upload notifications to Discord-compatible webhooks.
//
// Delivery is best effort: every webhook gets exactly one attempt and the
// outcome is handed back to the caller as a Result, never as an error that
// could fail the upload itself.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/ondrasimku/upload-service-go/internal/domain"
)

const (
	titleFileUploaded = "File uploaded"
	fieldURL          = "URL"
	fieldDeletionURL  = "Deletion URL"
	linkView          = "Click here to view"
	linkDelete        = "Click here to delete"
)

type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Color       int          `json:"color"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Image       *EmbedImage  `json:"image,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
}

type EmbedImage struct {
	URL string `json:"url"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type payload struct {
	Embeds []Embed `json:"embeds"`
}

// FileEmbed builds the embed announcing a new upload.
func FileEmbed(file domain.UploadedFile, now time.Time) Embed {
	return Embed{
		Title:       titleFileUploaded,
		Description: file.URL,
		Color:       rand.IntN(0xffffff + 1),
		Timestamp:   now.UTC().Format(time.RFC3339),
		Image:       &EmbedImage{URL: file.URL},
		Fields: []EmbedField{
			{Name: fieldURL, Value: fmt.Sprintf("**[%s](%s)**", linkView, file.URL)},
			{Name: fieldDeletionURL, Value: fmt.Sprintf("**[%s](%s)**", linkDelete, file.DeletionURL)},
		},
	}
}

// Result reports what happened to each configured webhook.
type Result struct {
	Delivered int
	Errors    []error
}

func (r Result) Failed() int {
	return len(r.Errors)
}

type Notifier interface {
	Enabled() bool
	Notify(ctx context.Context, embed Embed) Result
}

type DiscordWebhook struct {
	urls       []string
	httpClient *http.Client
}

func NewDiscordWebhook(urls []string, timeout time.Duration) *DiscordWebhook {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DiscordWebhook{
		urls:       urls,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (d *DiscordWebhook) Enabled() bool {
	return len(d.urls) > 0
}

func (d *DiscordWebhook) Notify(ctx context.Context, embed Embed) Result {
	var result Result

	body, err := json.Marshal(payload{Embeds: []Embed{embed}})
	if err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("failed to encode embed: %w", err))
		return result
	}

	for _, url := range d.urls {
		if err := d.post(ctx, url, body); err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		result.Delivered++
	}

	return result
}

func (d *DiscordWebhook) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Dispatcher runs notifications in the background and logs their outcome.
// Wait blocks until every dispatched notification has finished.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	logger   *slog.Logger
	wg       sync.WaitGroup
}

func NewDispatcher(notifier Notifier, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{notifier: notifier, timeout: timeout, logger: logger}
}

func (d *Dispatcher) Dispatch(embed Embed) {
	if d.notifier == nil || !d.notifier.Enabled() {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		result := d.notifier.Notify(ctx, embed)
		for _, err := range result.Errors {
			d.logger.Error("Webhook notification failed", "error", err)
		}
		if result.Delivered > 0 {
			d.logger.Info("Webhook notification sent", "delivered", result.Delivered, "failed", result.Failed())
		}
	}()
}

func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
