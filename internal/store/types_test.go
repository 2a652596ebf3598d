// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store_test

import (
	"testing"

	"github.com/sigil-dev/semdex/internal/store"
	semerr "github.com/sigil-dev/semdex/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestRecord_EmbeddingText(t *testing.T) {
	tests := []struct {
		name string
		rec  store.Record
		want string
	}{
		{"title and body", store.Record{Title: "Title", Body: "Body"}, "Title\n\nBody"},
		{"title only", store.Record{Title: " Title "}, "Title"},
		{"body only", store.Record{Body: "Body\n"}, "Body"},
		{"empty", store.Record{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rec.EmbeddingText())
		})
	}
}

func TestRecord_Validate(t *testing.T) {
	assert.NoError(t, store.Record{ID: "r1", Title: "x", Ready: true}.Validate())
	assert.NoError(t, store.Record{ID: "r1"}.Validate(), "draft records may be empty")

	err := store.Record{Title: "x"}.Validate()
	assert.True(t, semerr.IsInvalidInput(err))

	err = store.Record{ID: "r1", Ready: true}.Validate()
	assert.True(t, semerr.HasCode(err, semerr.CodeStoreRecordPutInvalid))
}

func TestIndex_Validate(t *testing.T) {
	valid := store.Index{ID: "i1", Name: "docs", Provider: "sqlite-vec"}
	assert.NoError(t, valid.Validate())

	for name, mutate := range map[string]func(*store.Index){
		"missing id":       func(i *store.Index) { i.ID = "" },
		"missing name":     func(i *store.Index) { i.Name = "" },
		"missing provider": func(i *store.Index) { i.Provider = "" },
		"negative count":   func(i *store.Index) { i.IndexedCount = -1 },
	} {
		t.Run(name, func(t *testing.T) {
			idx := valid
			mutate(&idx)
			assert.True(t, semerr.IsInvalidInput(idx.Validate()))
		})
	}
}

func TestItemStatus_Valid(t *testing.T) {
	assert.True(t, store.ItemStatusIndexing.Valid())
	assert.True(t, store.ItemStatusIndexed.Valid())
	assert.True(t, store.ItemStatusStale.Valid())
	assert.False(t, store.ItemStatus("DONE").Valid())
	assert.True(t, store.IndexItem{}.Orphaned())
	assert.False(t, store.IndexItem{RecordID: "r1"}.Orphaned())
}
