package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/spachava753/invoke"
	"github.com/spachava753/invoke/sse"
)

// fileTransport serves a recorded event stream from disk.
type fileTransport struct {
	path string
}

func (f fileTransport) OpenStream(context.Context, invoke.Request) (invoke.Source, error) {
	src, err := sse.NewFileSource(f.path)
	if err != nil {
		return nil, err
	}
	return src, nil
}

func newReplayCmd(a *app) *cobra.Command {
	var fragmentPath string
	cmd := &cobra.Command{
		Use:   "replay <file>",
		Short: "Dispatch a recorded event stream through a session",
		Long: `replay reads a captured text/event-stream response and runs it through the same
dispatch path as a live invocation. Useful for debugging fragment paths and unrecognized events.`,
		Example: `  invoke replay testdata/claude.sse
  invoke replay --fragment-path delta.text anthropic.sse`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd.Context())
			defer cancel()

			model := a.model
			if model == "" {
				model = "replay"
			}
			req := invoke.Request{ModelID: model, Body: []byte("{}")}
			var opts []invoke.DispatcherOption
			if fragmentPath != "" {
				opts = append(opts, invoke.WithFragmentPath(fragmentPath))
			}
			return a.stream(ctx, a.client(fileTransport{path: args[0]}), req, opts...)
		},
	}
	cmd.Flags().StringVar(&fragmentPath, "fragment-path", "", `gjson path of the text fragment (default "completion")`)
	return cmd
}
