// Package invoke is a client for streaming generative-model inference APIs.
//
// A request is opened once and answered with an ordered sequence of framed events on a
// single stream. The client routes each event by kind, assembles the completion text, and
// resolves exactly one terminal Outcome per request, whether the stream completes, fails
// mid-way, or is cancelled.
//
// # Core Concepts
//
// Transport: opens streams against a remote service. Provider implementations live in the
// sse, anthropic, openai and gemini sub-packages.
//
//	type Transport interface {
//		OpenStream(ctx context.Context, req Request) (Source, error)
//	}
//
// Event: one framed unit on the stream, either a Chunk holding a JSON record with a
// completion fragment, or an Unrecognized event that is reported to a default handler and
// otherwise ignored.
//
// Session: the lifecycle of one submitted Request. It moves through
// Created → Submitted → Streaming and ends in Completed or Failed.
//
// Outcome: the terminal result. On success it carries the concatenated fragments; on
// failure the cause, one of *InvalidRequestErr, *TransportErr, *DecodeErr or ErrCancelled.
// Fragments handed to a chunk handler before a failure are not retracted.
//
// # Examples
//
// Streaming a completion and printing it as it arrives:
//
//	client := invoke.NewClient(sse.New("https://inference.example.com"))
//
//	sess, err := client.Submit(ctx, invoke.Request{
//		ModelID: "anthropic.claude-v2",
//		Body:    []byte(`{"prompt":"\n\nHuman: hi\n\nAssistant:","max_tokens_to_sample":256}`),
//	}, invoke.WithChunkHandler(func(s string) { fmt.Print(s) }))
//	if err != nil {
//		return err
//	}
//	outcome, err := sess.Wait(ctx)
//
// # Wrappers
//
// A Session never retries on its own. Transports compose with [Wrap]: [WithRetry] retries
// transient failures to open a stream, [NewFallbackTransport] moves on to another
// endpoint, and [WithLogging] logs each attempt. None of them replays a stream that has
// already delivered a fragment. Callers with their own policy can check [IsRetryable] on
// the Outcome's error and submit again.
//
//	t := invoke.Wrap(sse.New(baseURL),
//		invoke.WithRetry(nil, backoff.WithMaxTries(3)),
//		invoke.WithLogging(logger),
//	)
package invoke
