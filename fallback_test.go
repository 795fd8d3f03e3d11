package invoke_test

import (
	"context"
	"errors"
	"testing"

	"github.com/spachava753/invoke"
)

func failingOpen(status int) *mockTransport {
	return &mockTransport{
		OpenStreamFunc: func(ctx context.Context, req invoke.Request) (invoke.Source, error) {
			return nil, &invoke.TransportErr{Op: "open stream", StatusCode: status, Err: errors.New("unavailable")}
		},
	}
}

func TestNewFallbackTransport(t *testing.T) {
	tests := []struct {
		name       string
		transports []invoke.Transport
		config     *invoke.FallbackConfig
		wantErr    bool
	}{
		{"too few transports", []invoke.Transport{&mockTransport{}}, nil, true},
		{"exactly two transports", []invoke.Transport{&mockTransport{}, &mockTransport{}}, nil, false},
		{"more than two transports", []invoke.Transport{&mockTransport{}, &mockTransport{}, &mockTransport{}}, nil, false},
		{"with custom config", []invoke.Transport{&mockTransport{}, &mockTransport{}}, &invoke.FallbackConfig{ShouldFallback: func(error) bool { return true }}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := invoke.NewFallbackTransport(tt.transports, tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewFallbackTransport() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFallbackTransport_OpenStream(t *testing.T) {
	hello := invoke.ChunkEvent([]byte(`{"completion":"Hello"}`))

	tests := []struct {
		name      string
		primary   *mockTransport
		config    *invoke.FallbackConfig
		wantText  string
		wantCalls int32
		wantErr   bool
	}{
		{
			name:      "primary succeeds",
			primary:   func() *mockTransport { m, _ := sliceTransport(hello); return m }(),
			wantText:  "Hello",
			wantCalls: 0,
		},
		{
			name:      "falls back on 503",
			primary:   failingOpen(503),
			wantText:  "Fallback",
			wantCalls: 1,
		},
		{
			name:      "falls back on 429",
			primary:   failingOpen(429),
			wantText:  "Fallback",
			wantCalls: 1,
		},
		{
			name:      "no fallback on 400",
			primary:   failingOpen(400),
			wantCalls: 0,
			wantErr:   true,
		},
		{
			name:      "custom status codes",
			primary:   failingOpen(404),
			config:    func() *invoke.FallbackConfig { c := invoke.NewHTTPStatusFallbackConfig(404); return &c }(),
			wantText:  "Fallback",
			wantCalls: 1,
		},
		{
			name:      "custom status codes exclude 503",
			primary:   failingOpen(503),
			config:    func() *invoke.FallbackConfig { c := invoke.NewHTTPStatusFallbackConfig(404); return &c }(),
			wantCalls: 0,
			wantErr:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			secondary, _ := sliceTransport(invoke.ChunkEvent([]byte(`{"completion":"Fallback"}`)))
			ft, err := invoke.NewFallbackTransport([]invoke.Transport{tt.primary, secondary}, tt.config)
			if err != nil {
				t.Fatal(err)
			}
			sess, err := invoke.NewClient(ft).Submit(context.Background(), hiRequest)
			if err != nil {
				t.Fatal(err)
			}
			o := waitOutcome(t, sess)
			if (o.Err != nil) != tt.wantErr {
				t.Fatalf("outcome error = %v, wantErr %v", o.Err, tt.wantErr)
			}
			if o.Text != tt.wantText {
				t.Errorf("text = %q, want %q", o.Text, tt.wantText)
			}
			if got := secondary.openCount.Load(); got != tt.wantCalls {
				t.Errorf("secondary opened %d times, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestFallbackTransport_AllFail(t *testing.T) {
	ft, err := invoke.NewFallbackTransport([]invoke.Transport{failingOpen(503), failingOpen(502)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = ft.OpenStream(context.Background(), hiRequest)
	var te *invoke.TransportErr
	if !errors.As(err, &te) || te.StatusCode != 502 {
		t.Errorf("error = %v, want the last transport's 502", err)
	}
}

func TestFallbackTransport_Invoke(t *testing.T) {
	ok := &mockInvoker{InvokeFunc: func(ctx context.Context, req invoke.Request) (invoke.Response, error) {
		return invoke.Response{Body: []byte(`{"completion":"Hi"}`)}, nil
	}}
	throttled := &mockInvoker{InvokeFunc: func(ctx context.Context, req invoke.Request) (invoke.Response, error) {
		return invoke.Response{}, &invoke.TransportErr{Op: "invoke", StatusCode: 429}
	}}

	// a stream-only transport in the middle is skipped
	ft, err := invoke.NewFallbackTransport([]invoke.Transport{throttled, &mockTransport{}, ok}, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := invoke.NewClient(ft).Generate(context.Background(), hiRequest)
	if err != nil {
		t.Fatal(err)
	}
	if got != "Hi" || throttled.invokeCount != 1 || ok.invokeCount != 1 {
		t.Errorf("got %q, calls %d/%d", got, throttled.invokeCount, ok.invokeCount)
	}

	streamOnly, _ := invoke.NewFallbackTransport([]invoke.Transport{&mockTransport{}, &mockTransport{}}, nil)
	if _, err := invoke.NewClient(streamOnly).Generate(context.Background(), hiRequest); !errors.Is(err, invoke.ErrNotInvoker) {
		t.Errorf("error = %v, want ErrNotInvoker", err)
	}
}

func TestFallbackTransport_FragmentPath(t *testing.T) {
	ft, _ := invoke.NewFallbackTransport([]invoke.Transport{&mockInvoker{fragmentPath: "delta.text"}, &mockTransport{}}, nil)
	if got := ft.FragmentPath(); got != "delta.text" {
		t.Errorf("FragmentPath() = %q", got)
	}
}
