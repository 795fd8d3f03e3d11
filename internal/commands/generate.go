package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newGenerateCmd(a *app) *cobra.Command {
	var (
		bf    bodyFlags
		async bool
	)
	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Request a whole completion in one call",
		Example: `  invoke generate "Summarize the plot of Hamlet"
  invoke generate --async --provider openai --model gpt-4o-mini "hello"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd.Context())
			defer cancel()

			client, err := a.providerClient(ctx)
			if err != nil {
				return err
			}
			req := a.request(bf.body(args[0]))

			if !async {
				text, err := client.Generate(ctx, req)
				if err != nil {
					return exitWithCode(exitCodeFor(err), err)
				}
				fmt.Fprintln(a.out, text)
				return nil
			}

			// the invocation itself observes ctx, so the future always resolves
			o, _ := client.GenerateAsync(ctx, req).Wait(context.Background())
			if err := a.report(o); err != nil {
				return err
			}
			fmt.Fprintln(a.out, o.Text)
			return nil
		},
	}
	bf.register(cmd)
	cmd.Flags().BoolVar(&async, "async", false, "run the invocation in the background and wait for its outcome")
	return cmd
}
