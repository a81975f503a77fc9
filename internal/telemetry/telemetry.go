/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package telemetry sends anonymous, opt-in usage summaries (tab switches, idle unloads, content
// process terminations) and crash reports. Nothing is sent unless the user opted in and an endpoint
// is configured; failures are dropped.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	applog "multiassistant/internal/log"
	"multiassistant/internal/version"
)

// Environment variables read by FromEnv.
const (
	EnvOptIn     = "MA_TELEMETRY_OPT_IN"     // 1/true/yes/on
	EnvEventsURL = "MA_TELEMETRY_URL"        // POST target for JSON events
	EnvCrashURL  = "MA_CRASH_UPLOAD_URL"     // POST target for plain-text crash reports
	EnvTimeoutMS = "MA_TELEMETRY_TIMEOUT_MS" // request timeout, default 1500
	EnvDebug     = "MA_TELEMETRY_DEBUG"      // any value logs send attempts
)

const (
	defaultTimeout = 1500 * time.Millisecond
	queueSize      = 64
	flushWindow    = 500 * time.Millisecond
)

// Config controls where and whether anything is sent.
type Config struct {
	OptIn        bool
	EventsURL    string
	CrashURL     string
	Timeout      time.Duration
	DebugLogging bool
}

// FromEnv builds a Config from the MA_TELEMETRY_* variables.
func FromEnv() Config {
	cfg := Config{
		OptIn:        truthy(os.Getenv(EnvOptIn)),
		EventsURL:    strings.TrimSpace(os.Getenv(EnvEventsURL)),
		CrashURL:     strings.TrimSpace(os.Getenv(EnvCrashURL)),
		Timeout:      defaultTimeout,
		DebugLogging: os.Getenv(EnvDebug) != "",
	}
	if ms, err := strconv.Atoi(strings.TrimSpace(os.Getenv(EnvTimeoutMS))); err == nil && ms > 0 {
		cfg.Timeout = time.Duration(ms) * time.Millisecond
	}
	return cfg
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Client queues encoded events for a single sender goroutine. Event never blocks; a full queue drops.
type Client struct {
	cfg    Config
	log    *slog.Logger
	http   *http.Client
	queue  chan []byte
	stop   sync.Once
	closed chan struct{}
}

// New starts a client. Close it to stop the sender.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := &Client{
		cfg:    cfg,
		log:    applog.WithComponent("telemetry"),
		http:   &http.Client{Timeout: cfg.Timeout},
		queue:  make(chan []byte, queueSize),
		closed: make(chan struct{}),
	}
	go c.run()
	return c
}

// Enabled reports whether events are sent at all.
func (c *Client) Enabled() bool { return c != nil && c.cfg.OptIn && c.cfg.EventsURL != "" }

// Event queues a named event. props must not carry personal data (URLs, labels, page content).
func (c *Client) Event(name string, props map[string]any) {
	if !c.Enabled() || name == "" {
		return
	}
	payload := make(map[string]any, len(props)+5)
	for k, v := range props {
		payload[k] = v
	}
	payload["name"] = name
	payload["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	payload["version"] = version.String()
	payload["os"] = runtime.GOOS
	payload["arch"] = runtime.GOARCH
	body, err := json.Marshal(payload)
	if err != nil {
		c.debug("encode event failed", slog.String("event", name), slog.Any("err", err))
		return
	}
	select {
	case c.queue <- body:
	default:
		c.debug("event dropped, queue full", slog.String("event", name))
	}
}

// Counters queues an event whose properties are counters, e.g. the lifecycle summary at exit.
// Zero counters are left out.
func (c *Client) Counters(name string, counts map[string]int) {
	if !c.Enabled() {
		return
	}
	props := make(map[string]any, len(counts))
	for k, v := range counts {
		if v != 0 {
			props[k] = v
		}
	}
	c.Event(name, props)
}

// Flush waits up to half a second (or until ctx ends) for the queue to drain.
func (c *Client) Flush(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	deadline := time.Now().Add(flushWindow)
	for len(c.queue) > 0 && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(25 * time.Millisecond):
		}
	}
}

// Close stops the sender. Queued events are discarded.
func (c *Client) Close() { c.stop.Do(func() { close(c.closed) }) }

func (c *Client) run() {
	for {
		select {
		case <-c.closed:
			return
		case body := <-c.queue:
			c.post(c.cfg.EventsURL, "application/json", body, "event")
		}
	}
}

// UploadCrash posts a crash report in the background when the user opted in.
func (c *Client) UploadCrash(report []byte) {
	if c == nil || !c.cfg.OptIn || c.cfg.CrashURL == "" {
		return
	}
	body := append([]byte(nil), report...)
	go c.post(c.cfg.CrashURL, "text/plain; charset=utf-8", body, "crash report")
}

func (c *Client) post(url, contentType string, body []byte, what string) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		c.debug(what+" request invalid", slog.Any("err", err))
		return
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.http.Do(req)
	if err != nil {
		c.debug(what+" send failed", slog.Any("err", err))
		return
	}
	_ = resp.Body.Close()
	c.debug(what+" sent", slog.Int("status", resp.StatusCode))
}

func (c *Client) debug(msg string, attrs ...any) {
	if c.cfg.DebugLogging {
		c.log.Debug(msg, attrs...)
	}
}

var (
	defaultMu     sync.Mutex
	defaultClient *Client
)

// NewDefault installs the package-level client, replacing (and closing) a previous one.
func NewDefault(cfg Config) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultClient != nil {
		defaultClient.Close()
	}
	defaultClient = New(cfg)
}

// InitDefault installs a client from the environment unless one exists.
func InitDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultClient == nil {
		defaultClient = New(FromEnv())
	}
}

func std() *Client {
	InitDefault()
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultClient
}

// Enabled reports whether the package-level client sends events.
func Enabled() bool { return std().Enabled() }

// Event queues an event on the package-level client.
func Event(name string, props map[string]any) { std().Event(name, props) }

// Counters queues a counter summary on the package-level client.
func Counters(name string, counts map[string]int) { std().Counters(name, counts) }

// UploadCrash posts a crash report with the package-level client.
func UploadCrash(report []byte) { std().UploadCrash(report) }

// Flush drains the package-level client, if one was created.
func Flush(ctx context.Context) {
	defaultMu.Lock()
	c := defaultClient
	defaultMu.Unlock()
	if c != nil {
		c.Flush(ctx)
	}
}
