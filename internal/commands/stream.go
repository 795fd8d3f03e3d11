package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spachava753/invoke"
	"github.com/spachava753/invoke/prompt"
)

// bodyFlags shape the request body built from the prompt argument.
type bodyFlags struct {
	system      string
	temperature float64
	maxTokens   int64
	stop        []string
	raw         bool
}

func (b *bodyFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&b.system, "system", "", "system prompt")
	f.Float64Var(&b.temperature, "temperature", 0.8, "sampling temperature")
	f.Int64Var(&b.maxTokens, "max-tokens", prompt.DefaultMaxTokens, "maximum tokens to sample")
	f.StringSliceVar(&b.stop, "stop", nil, "stop sequences")
	f.BoolVar(&b.raw, "raw", false, "send the argument as the request body unchanged")
}

func (b *bodyFlags) body(text string) []byte {
	if b.raw {
		return []byte(text)
	}
	body := prompt.New(text).WithTemperature(b.temperature)
	body.System = b.system
	body.MaxTokens = b.maxTokens
	body.StopSequences = b.stop
	return body.Encode()
}

func newStreamCmd(a *app) *cobra.Command {
	var bf bodyFlags
	cmd := &cobra.Command{
		Use:   "stream <prompt>",
		Short: "Stream a completion, printing fragments as they arrive",
		Example: `  invoke stream "Tell me a joke"
  invoke stream --model anthropic.claude-v2 --guardrail-id gr-1 --guardrail-version 1 "hello"
  invoke stream --timeout 10s --raw '{"prompt":"\n\nHuman: hi\n\nAssistant:"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd.Context())
			defer cancel()

			client, err := a.providerClient(ctx)
			if err != nil {
				return err
			}
			return a.stream(ctx, client, a.request(bf.body(args[0])))
		},
	}
	bf.register(cmd)
	return cmd
}

// stream submits req and writes every fragment to the output as it is delivered.
func (a *app) stream(ctx context.Context, client *invoke.Client, req invoke.Request, opts ...invoke.DispatcherOption) error {
	printed := false
	opts = append(opts, invoke.WithChunkHandler(func(fragment string) {
		printed = true
		fmt.Fprint(a.out, fragment)
	}))
	sess, err := client.Submit(ctx, req, opts...)
	if err != nil {
		return exitWithCode(ExitValidation, err)
	}
	// the session resolves on its own when ctx ends
	o, _ := sess.Wait(context.Background())
	if printed {
		fmt.Fprintln(a.out)
	}
	return a.report(o)
}
