package sse_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spachava753/invoke"
	"github.com/spachava753/invoke/sse"
)

// writeEvents writes each event as an SSE frame and flushes after every one.
func writeEvents(w http.ResponseWriter, frames ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	for _, f := range frames {
		fmt.Fprint(w, f)
		w.(http.Flusher).Flush()
	}
}

func chunkFrame(text string) string {
	return fmt.Sprintf("event: chunk\ndata: {\"completion\":%q}\n\n", text)
}

func waitOutcome(t *testing.T, sess *invoke.Session) invoke.Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	o, err := sess.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	return o
}

// captured is what the test server saw of a request.
type captured struct {
	path, accept, auth, guardrail, version, body string
}

func TestTransport_Stream(t *testing.T) {
	seen := make(chan captured, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen <- captured{
			path:      r.URL.Path,
			accept:    r.Header.Get("Accept"),
			auth:      r.Header.Get("Authorization"),
			guardrail: r.Header.Get(sse.GuardrailIDHeader),
			version:   r.Header.Get(sse.GuardrailVersionHeader),
			body:      string(b),
		}
		writeEvents(w,
			": keep-alive comment\n\n",
			chunkFrame("He"),
			"event: ping\ndata: {}\n\n",
			chunkFrame("llo"),
		)
	}))
	defer srv.Close()

	tr := sse.New(srv.URL+"/", sse.WithHeader("Authorization", "Bearer token"))
	var fragments []string
	sess, err := invoke.NewClient(tr).Submit(context.Background(), invoke.Request{
		ModelID:   "anthropic.claude-v2",
		Body:      []byte(`{"prompt":"hi"}`),
		Guardrail: &invoke.GuardrailRef{ID: "gr-1", Version: "3"},
	}, invoke.WithChunkHandler(func(s string) { fragments = append(fragments, s) }))
	if err != nil {
		t.Fatal(err)
	}

	o := waitOutcome(t, sess)
	if !o.Succeeded() || o.Text != "Hello" {
		t.Fatalf("unexpected outcome %+v", o)
	}
	if len(fragments) != 2 {
		t.Errorf("handler saw %v", fragments)
	}
	if n, _ := invoke.GetMetric[int](o.Metrics, invoke.MetricUnrecognizedEvents); n != 1 {
		t.Errorf("unrecognized events = %d, want 1", n)
	}

	req := <-seen
	if req.path != "/model/anthropic.claude-v2/invoke-with-response-stream" {
		t.Errorf("path = %q", req.path)
	}
	if req.accept != "text/event-stream" || req.auth != "Bearer token" {
		t.Errorf("headers: accept=%q auth=%q", req.accept, req.auth)
	}
	if req.guardrail != "gr-1" || req.version != "3" {
		t.Errorf("guardrail headers: %q %q", req.guardrail, req.version)
	}
	if req.body != `{"prompt":"hi"}` {
		t.Errorf("body = %q", req.body)
	}
}

func TestTransport_Failures(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		wantText []string
		checkErr func(t *testing.T, err error)
	}{
		{
			name: "throttled on open",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprint(w, `{"message":"Too many requests, please wait"}`)
			},
			checkErr: func(t *testing.T, err error) {
				var te *invoke.TransportErr
				if !errors.As(err, &te) || te.StatusCode != 429 || te.Op != "open stream" {
					t.Fatalf("expected 429 TransportErr, got %v", err)
				}
				if !strings.Contains(err.Error(), "Too many requests") {
					t.Errorf("service message lost: %v", err)
				}
				if !invoke.IsRetryable(err) {
					t.Error("429 should be retryable")
				}
			},
		},
		{
			name: "error event after first chunk",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeEvents(w,
					chunkFrame("He"),
					"event: error\ndata: {\"message\":\"model overloaded\",\"status\":503}\n\n",
					chunkFrame("llo"),
				)
			},
			wantText: []string{"He"},
			checkErr: func(t *testing.T, err error) {
				var te *invoke.TransportErr
				if !errors.As(err, &te) || te.StatusCode != 503 || te.Op != "receive" {
					t.Fatalf("expected 503 receive TransportErr, got %v", err)
				}
			},
		},
		{
			name: "error event without json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeEvents(w, "event: error\ndata: boom\n\n")
			},
			checkErr: func(t *testing.T, err error) {
				if !strings.Contains(err.Error(), "boom") {
					t.Errorf("error %v does not carry the event data", err)
				}
			},
		},
		{
			name: "malformed chunk",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeEvents(w, chunkFrame("ok"), "event: chunk\ndata: {\"completion\":\n\n", chunkFrame("never"))
			},
			wantText: []string{"ok"},
			checkErr: func(t *testing.T, err error) {
				var de *invoke.DecodeErr
				if !errors.As(err, &de) {
					t.Fatalf("expected DecodeErr, got %v", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			var fragments []string
			sess, err := invoke.NewClient(sse.New(srv.URL)).Submit(context.Background(),
				invoke.Request{ModelID: "m", Body: []byte(`{}`)},
				invoke.WithChunkHandler(func(s string) { fragments = append(fragments, s) }))
			if err != nil {
				t.Fatal(err)
			}

			o := waitOutcome(t, sess)
			if o.Succeeded() {
				t.Fatalf("expected failure, got %+v", o)
			}
			tt.checkErr(t, o.Err)
			if strings.Join(fragments, "|") != strings.Join(tt.wantText, "|") {
				t.Errorf("handler saw %v, want %v", fragments, tt.wantText)
			}
		})
	}
}

func TestTransport_Cancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEvents(w, chunkFrame("partial"))
		<-r.Context().Done()
	}))
	defer srv.Close()

	first := make(chan struct{})
	sess, err := invoke.NewClient(sse.New(srv.URL)).Submit(context.Background(),
		invoke.Request{ModelID: "m", Body: []byte(`{}`)},
		invoke.WithChunkHandler(func(string) { close(first) }))
	if err != nil {
		t.Fatal(err)
	}

	select {
	case <-first:
	case <-time.After(5 * time.Second):
		t.Fatal("no chunk received")
	}
	sess.Cancel()

	o := waitOutcome(t, sess)
	if !errors.Is(o.Err, invoke.ErrCancelled) {
		t.Errorf("Outcome.Err = %v, want ErrCancelled", o.Err)
	}
	if o.Text != "" {
		t.Errorf("cancelled outcome carries text %q", o.Text)
	}
}

func TestTransport_Invoke(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/model/amazon.titan-text-express-v1/invoke" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"outputText":"titan says hi"}`)
	}))
	defer srv.Close()

	client := invoke.NewClient(sse.New(srv.URL, sse.WithFragmentPath("outputText")))
	got, err := client.Generate(context.Background(), invoke.Request{
		ModelID: "amazon.titan-text-express-v1",
		Body:    []byte(`{"inputText":"hi"}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != "titan says hi" {
		t.Errorf("Generate() = %q", got)
	}

	_, err = client.Generate(context.Background(), invoke.Request{ModelID: "unknown", Body: []byte(`{}`)})
	var te *invoke.TransportErr
	if !errors.As(err, &te) || te.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 TransportErr, got %v", err)
	}
}

func TestNewFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recorded.sse")
	recorded := chunkFrame("from ") + "event: message_stop\ndata: {}\n\n" + chunkFrame("disk")
	if err := os.WriteFile(path, []byte(recorded), 0o600); err != nil {
		t.Fatal(err)
	}

	src, err := sse.NewFileSource(path)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	var kinds []string
	for src.Next() {
		kinds = append(kinds, src.Current().String())
	}
	if src.Err() != nil {
		t.Fatalf("Err() = %v", src.Err())
	}
	want := []string{`chunk({"completion":"from "})`, "unrecognized(message_stop)", `chunk({"completion":"disk"})`}
	if strings.Join(kinds, "\n") != strings.Join(want, "\n") {
		t.Errorf("events = %v, want %v", kinds, want)
	}

	if _, err := sse.NewFileSource(filepath.Join(t.TempDir(), "missing.sse")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
