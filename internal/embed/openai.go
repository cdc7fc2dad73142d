// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agentic CDP Contributors

package embed

import (
	"context"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/romangoldberg/agentic-cdp-demo/internal/store"
	cdperr "github.com/romangoldberg/agentic-cdp-demo/pkg/errors"
)

// defaultOpenAIModel is used when no model is configured.
const defaultOpenAIModel = "text-embedding-3-small"

// Compile-time interface check.
var _ store.Embedder = (*OpenAI)(nil)

// OpenAI embeds text via the OpenAI embeddings API.
type OpenAI struct {
	client openaisdk.Client
	model  string
	dims   int
}

// NewOpenAI creates an OpenAI embedder. Returns an error if the API key is
// missing.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, cdperr.New(cdperr.CodeEmbedRequestFailure, "openai: missing api_key in config")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = DefaultDimensions
	}

	return &OpenAI{
		client: openaisdk.NewClient(opts...),
		model:  model,
		dims:   dims,
	}, nil
}

func (o *OpenAI) Dimensions() int { return o.dims }

// Embed requests embeddings for all texts in a single API call, preserving
// input order.
func (o *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := o.client.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Input:      openaisdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:      openaisdk.EmbeddingModel(o.model),
		Dimensions: openaisdk.Int(int64(o.dims)),
	})
	if err != nil {
		return nil, cdperr.Wrapf(err, cdperr.CodeEmbedRequestFailure, "requesting embeddings for %d texts", len(texts))
	}
	if len(resp.Data) != len(texts) {
		return nil, cdperr.Errorf(cdperr.CodeEmbedRequestFailure,
			"embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(resp.Data))
	}

	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, x := range d.Embedding {
			vec[j] = float32(x)
		}
		out[i] = vec
	}
	return out, nil
}
