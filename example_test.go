package invoke_test

import (
	"context"
	"fmt"
	"strings"

	"github.com/spachava753/invoke"
)

// staticTransport replays the same events for every request.
type staticTransport struct {
	events []invoke.Event
}

func (s staticTransport) OpenStream(context.Context, invoke.Request) (invoke.Source, error) {
	return invoke.SliceSource(s.events...), nil
}

func ExampleClient_Submit() {
	client := invoke.NewClient(staticTransport{events: []invoke.Event{
		completion("Hello"),
		invoke.UnrecognizedEvent("metadata"),
		completion(", world"),
	}})

	sess, err := client.Submit(context.Background(), invoke.Request{
		ModelID: "anthropic.claude-v2",
		Body:    []byte(`{"prompt":"\n\nHuman: say hello\n\nAssistant:"}`),
	}, invoke.WithChunkHandler(func(fragment string) {
		fmt.Printf("fragment: %q\n", fragment)
	}))
	if err != nil {
		fmt.Println(err)
		return
	}

	outcome, err := sess.Wait(context.Background())
	if err != nil {
		fmt.Println(err)
		return
	}
	chunks, _ := invoke.Chunks(outcome.Metrics)
	unrecognized, _ := invoke.GetMetric[int](outcome.Metrics, invoke.MetricUnrecognizedEvents)
	fmt.Println(outcome.Text)
	fmt.Println(sess.State(), chunks, unrecognized)
	// Output:
	// fragment: "Hello"
	// fragment: ", world"
	// Hello, world
	// completed 2 1
}

// -----------------------------------------------------------------------------
// A wrapper that only overrides OpenStream
// -----------------------------------------------------------------------------

// DefaultGuardrail attaches a guardrail to requests that do not carry one. Invoke and
// FragmentPath pass through to Inner via TransportWrapper.
type DefaultGuardrail struct {
	invoke.TransportWrapper
	Guardrail invoke.GuardrailRef
}

func (d *DefaultGuardrail) OpenStream(ctx context.Context, req invoke.Request) (invoke.Source, error) {
	if req.Guardrail == nil {
		g := d.Guardrail
		req.Guardrail = &g
	}
	return d.TransportWrapper.OpenStream(ctx, req)
}

// guardrailEcho streams back the guardrail it was asked to apply.
type guardrailEcho struct{}

func (guardrailEcho) OpenStream(_ context.Context, req invoke.Request) (invoke.Source, error) {
	id := "none"
	if req.Guardrail != nil {
		id = req.Guardrail.ID
	}
	return invoke.SliceSource(completion("guardrail=" + id)), nil
}

func ExampleWrap() {
	withGuardrail := func(t invoke.Transport) invoke.Transport {
		return &DefaultGuardrail{
			TransportWrapper: invoke.TransportWrapper{Inner: t},
			Guardrail:        invoke.GuardrailRef{ID: "gr-default", Version: "1"},
		}
	}
	client := invoke.NewClient(invoke.Wrap(guardrailEcho{}, withGuardrail))

	for _, req := range []invoke.Request{
		{ModelID: "m1", Body: []byte(`{}`)},
		{ModelID: "m1", Body: []byte(`{}`), Guardrail: &invoke.GuardrailRef{ID: "gr-strict"}},
	} {
		sess, _ := client.Submit(context.Background(), req)
		outcome, _ := sess.Wait(context.Background())
		fmt.Println(outcome.Text)
	}
	// Output:
	// guardrail=gr-default
	// guardrail=gr-strict
}

func ExampleWithFragmentPath() {
	client := invoke.NewClient(staticTransport{events: []invoke.Event{
		invoke.ChunkEvent([]byte(`{"type":"content_block_delta","delta":{"type":"text_delta","text":"Bonjour"}}`)),
	}}, invoke.WithDispatcherOptions(invoke.WithFragmentPath("delta.text")))

	sess, _ := client.Submit(context.Background(), invoke.Request{ModelID: "m1", Body: []byte(`{}`)})
	outcome, _ := sess.Wait(context.Background())
	fmt.Println(outcome.Text)
	// Output: Bonjour
}

func ExampleSession_Cancel() {
	// a stream that never ends on its own
	client := invoke.NewClient(endless{})
	sess, _ := client.Submit(context.Background(), invoke.Request{ModelID: "m1", Body: []byte(`{}`)})

	sess.Cancel()
	outcome, _ := sess.Wait(context.Background())
	fmt.Println(sess.State(), strings.Contains(outcome.Err.Error(), "cancelled"))
	// Output: failed true
}

type endless struct{}

func (endless) OpenStream(ctx context.Context, _ invoke.Request) (invoke.Source, error) {
	return &endlessSource{ctx: ctx}, nil
}

type endlessSource struct {
	ctx context.Context
}

func (e *endlessSource) Next() bool {
	<-e.ctx.Done()
	return false
}
func (e *endlessSource) Current() invoke.Event { return invoke.Event{} }
func (e *endlessSource) Err() error            { return e.ctx.Err() }
func (e *endlessSource) Close() error          { return nil }
