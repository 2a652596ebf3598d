// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package vector_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/semdex/internal/vector"
	semerr "github.com/sigil-dev/semdex/pkg/errors"
)

type nopProvider struct{}

func (nopProvider) EmbedAndUpsert(context.Context, []vector.Document, vector.Config) error {
	return nil
}
func (nopProvider) Delete(context.Context, []string, vector.Config) error { return nil }
func (nopProvider) DropIndex(context.Context, vector.Config) error        { return nil }

func (nopProvider) EmbedAndSearch(context.Context, string, vector.Config) ([]vector.Match, error) {
	return nil, nil
}

func TestRegistry(t *testing.T) {
	reg := vector.NewRegistry()
	require.NoError(t, reg.Register("sqlitevec", nopProvider{}))
	require.NoError(t, reg.Register("memory", nopProvider{}))

	p, err := reg.Get("sqlitevec")
	require.NoError(t, err)
	assert.NotNil(t, p)
	assert.Equal(t, []string{"memory", "sqlitevec"}, reg.Names())

	_, err = reg.Get("pinecone")
	require.Error(t, err)
	assert.True(t, semerr.IsNotFound(err))

	err = reg.Register("sqlitevec", nopProvider{})
	assert.True(t, semerr.IsConflict(err))

	err = reg.Register("", nopProvider{})
	assert.True(t, semerr.IsInvalidInput(err))
}
