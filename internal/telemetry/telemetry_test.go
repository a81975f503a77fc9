/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type received struct {
	path        string
	contentType string
	body        []byte
}

// recorder serves /events and /crash and forwards every request body.
func recorder(t *testing.T) (*httptest.Server, <-chan received) {
	t.Helper()
	ch := make(chan received, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		ch <- received{path: r.URL.Path, contentType: r.Header.Get("Content-Type"), body: b}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv, ch
}

func next(t *testing.T, ch <-chan received) received {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(3 * time.Second):
		t.Fatalf("no request received")
	}
	return received{}
}

func decode(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		t.Fatalf("bad event json %q: %v", body, err)
	}
	return m
}

func TestClient_EventAndUploadCrash(t *testing.T) {
	srv, ch := recorder(t)
	c := New(Config{OptIn: true, EventsURL: srv.URL + "/events", CrashURL: srv.URL + "/crash", Timeout: 2 * time.Second})
	defer c.Close()
	if !c.Enabled() {
		t.Fatalf("expected client to be enabled")
	}

	c.Event("started", map[string]any{"slots": 2, "name": "spoofed"})
	c.Flush(context.Background())
	r := next(t, ch)
	if r.path != "/events" || r.contentType != "application/json" {
		t.Fatalf("event request = %s %s", r.path, r.contentType)
	}
	m := decode(t, r.body)
	if m["name"] != "started" || m["slots"] != float64(2) {
		t.Fatalf("event payload = %v", m)
	}
	if _, ok := m["ts"].(string); !ok {
		t.Fatalf("missing ts field")
	}

	c.UploadCrash([]byte("STACKTRACE"))
	r = next(t, ch)
	if r.path != "/crash" || string(r.body) != "STACKTRACE" {
		t.Fatalf("crash request = %s %q", r.path, r.body)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvOptIn, "Yes")
	t.Setenv(EnvEventsURL, " http://127.0.0.1:0 ")
	t.Setenv(EnvCrashURL, "")
	t.Setenv(EnvTimeoutMS, "100")

	cfg := FromEnv()
	if !cfg.OptIn || cfg.EventsURL != "http://127.0.0.1:0" || cfg.Timeout != 100*time.Millisecond {
		t.Fatalf("FromEnv did not parse correctly: %+v", cfg)
	}
	t.Setenv(EnvTimeoutMS, "soon")
	if FromEnv().Timeout != defaultTimeout {
		t.Fatalf("invalid timeout should fall back to the default")
	}

	NewDefault(cfg)
	if !Enabled() {
		t.Fatalf("default Enabled should be true with env config")
	}
	NewDefault(Config{})
	if Enabled() {
		t.Fatalf("replacing the default client should take effect")
	}
}
