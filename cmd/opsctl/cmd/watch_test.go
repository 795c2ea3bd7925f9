package cmd

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestWatchCommand_StreamsUntilTerminal(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/events") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)

		events := []string{
			`{"job_id":"job-1","kind":"started","timestamp":"2026-08-23T10:00:00Z"}`,
			`{"job_id":"job-1","kind":"log","payload":{"text":"PLAY [all]\n"},"timestamp":"2026-08-23T10:00:01Z"}`,
			`{"job_id":"job-1","kind":"completed","timestamp":"2026-08-23T10:00:02Z"}`,
		}
		for _, ev := range events {
			fmt.Fprintf(w, "data: %s\n\n", ev)
			flusher.Flush()
		}
	}))
	defer server.Close()

	viper.Set("url", server.URL)

	output := runCommand(t, "watch", "job-1")

	if !strings.Contains(output, "PLAY [all]") {
		t.Errorf("expected log text in output, got: %s", output)
	}
	if !strings.Contains(output, "completed") {
		t.Errorf("expected terminal event in output, got: %s", output)
	}
	if strings.Index(output, "started") > strings.Index(output, "completed") {
		t.Errorf("events out of order: %s", output)
	}
}

func TestWatchCommand_UnknownJob(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	viper.Set("url", server.URL)

	output := runCommand(t, "watch", "ghost")

	if !strings.Contains(output, "Watch failed") {
		t.Errorf("expected watch failure message, got: %s", output)
	}
}
