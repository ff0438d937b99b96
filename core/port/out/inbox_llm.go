package out

import "context"

// CompletionClient is the outbound port for the text-completion model.
// A single synchronous call; no streaming or tool use is needed here.
type CompletionClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
