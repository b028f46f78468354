package embed

import (
	"context"
)

// Provider turns texts into embedding vectors. Implementations must
// return one vector per input, in input order.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
