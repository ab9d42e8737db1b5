package embedding

import (
	"fmt"
	"os"

	"github.com/openai/openai-go"

	"github.com/planly/study-kb-server/internal/knowledge"
)

// Client wraps the OpenAI client used for embedding generation.
type Client struct {
	client *openai.Client
}

// NewClient creates an OpenAI client for embedding generation. The API key
// comes from OPENAI_API_KEY; an unset key means the backend is unconfigured,
// which surfaces as ErrEmbeddingUnavailable rather than a silent zero-vector
// fallback later.
func NewClient() (*Client, error) {
	if os.Getenv("OPENAI_API_KEY") == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY not set", knowledge.ErrEmbeddingUnavailable)
	}

	// openai-go reads OPENAI_API_KEY from the environment.
	client := openai.NewClient()
	return &Client{client: &client}, nil
}

// Client returns the underlying OpenAI client, shared with the metadata
// generator.
func (c *Client) Client() *openai.Client {
	return c.client
}
