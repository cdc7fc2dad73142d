// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agentic CDP Contributors

package embed_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romangoldberg/agentic-cdp-demo/internal/embed"
	cdperr "github.com/romangoldberg/agentic-cdp-demo/pkg/errors"
)

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func TestLocal_Deterministic(t *testing.T) {
	em := embed.NewLocal(64)
	ctx := context.Background()

	first, err := em.Embed(ctx, []string{"luxury socks", "budget hats"})
	require.NoError(t, err)
	second, err := em.Embed(ctx, []string{"luxury socks", "budget hats"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestLocal_DefaultDimensions(t *testing.T) {
	em := embed.NewLocal(0)
	assert.Equal(t, embed.DefaultDimensions, em.Dimensions())

	vecs, err := em.Embed(context.Background(), []string{"hello"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	assert.Len(t, vecs[0], embed.DefaultDimensions)
}

func TestLocal_UnitNorm(t *testing.T) {
	em := embed.NewLocal(64)

	vecs, err := em.Embed(context.Background(), []string{"red socks and red shoes"})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, dot(vecs[0], vecs[0]), 1e-5)
}

func TestLocal_SharedVocabularyScoresHigher(t *testing.T) {
	em := embed.NewLocal(256)

	vecs, err := em.Embed(context.Background(), []string{
		"luxury watches",
		"luxury watches and handbags",
		"discount garden tools",
	})
	require.NoError(t, err)

	query := vecs[0]
	assert.Greater(t, dot(query, vecs[1]), dot(query, vecs[2]))
}

func TestLocal_EmptyTextIsZeroVector(t *testing.T) {
	em := embed.NewLocal(16)

	vecs, err := em.Embed(context.Background(), []string{""})
	require.NoError(t, err)

	for _, x := range vecs[0] {
		assert.Zero(t, x)
	}
}

func TestNew_ProviderDispatch(t *testing.T) {
	em, err := embed.New(embed.Config{Provider: "local", Dimensions: 32})
	require.NoError(t, err)
	assert.Equal(t, 32, em.Dimensions())

	em, err = embed.New(embed.Config{})
	require.NoError(t, err)
	assert.Equal(t, embed.DefaultDimensions, em.Dimensions())

	_, err = embed.New(embed.Config{Provider: "cohere"})
	require.Error(t, err)
	assert.True(t, cdperr.IsUnsupported(err))

	_, err = embed.New(embed.Config{Provider: "openai"})
	require.Error(t, err) // api key required
}
