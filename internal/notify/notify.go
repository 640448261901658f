package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rowjay/arpm/internal/config"
)

// Event describes the outcome of one deploy or generate run.
type Event struct {
	Type         string    `json:"type"`
	RunID        string    `json:"run_id"`
	Message      string    `json:"message"`
	Status       string    `json:"status"`
	Destination  string    `json:"destination"`
	SourceDir    string    `json:"source_dir"`
	Files        int       `json:"files"`
	ManifestPath string    `json:"manifest_path,omitempty"`
	FallbackID   string    `json:"fallback_id,omitempty"`
	ArchiveKey   string    `json:"archive_key,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	EndedAt      time.Time `json:"ended_at"`
	Duration     string    `json:"duration"`
	Error        string    `json:"error,omitempty"`
}

// Text is the one-line chat rendering used by Mattermost and Matrix.
func (e Event) Text() string {
	if e.Error != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Status, e.Message, e.Error)
	}
	return fmt.Sprintf("[%s] %s (%d files)", e.Status, e.Message, e.Files)
}

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

type Multi struct {
	Targets []Notifier
}

// Notify delivers to every target and joins their failures.
func (m Multi) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, target := range m.Targets {
		if target == nil {
			continue
		}
		if err := target.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Webhook struct {
	Name    string
	URL     string
	Headers map[string]string
}

func (w Webhook) Notify(ctx context.Context, event Event) error {
	body, _ := json.Marshal(event)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.Headers {
		req.Header.Set(k, v)
	}
	resp, err := httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s returned %s", w.Name, resp.Status)
	}
	return nil
}

type Mattermost struct {
	Name string
	URL  string
}

func (m Mattermost) Notify(ctx context.Context, event Event) error {
	payload := map[string]string{"text": event.Text()}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("mattermost %s returned %s", m.Name, resp.Status)
	}
	return nil
}

type Matrix struct {
	Name        string
	ServerURL   string
	AccessToken string
	RoomID      string
}

func (m Matrix) Notify(ctx context.Context, event Event) error {
	endpoint := fmt.Sprintf("%s/_matrix/client/v3/rooms/%s/send/m.room.message/%d", strings.TrimRight(m.ServerURL, "/"), url.PathEscape(m.RoomID), time.Now().UnixNano())
	payload := map[string]any{
		"msgtype": "m.text",
		"body":    event.Text(),
	}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.AccessToken)
	resp, err := httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("matrix %s returned %s", m.Name, resp.Status)
	}
	return nil
}

func FromConfig(cfg config.NotificationsConfig) Multi {
	var targets []Notifier
	for _, w := range cfg.Webhooks {
		targets = append(targets, Webhook{Name: w.Name, URL: w.URL, Headers: w.Headers})
	}
	for _, mm := range cfg.Mattermost {
		targets = append(targets, Mattermost{Name: mm.Name, URL: mm.URL})
	}
	for _, mx := range cfg.Matrix {
		targets = append(targets, Matrix{Name: mx.Name, ServerURL: mx.ServerURL, AccessToken: mx.AccessToken, RoomID: mx.RoomID})
	}
	return Multi{Targets: targets}
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}
