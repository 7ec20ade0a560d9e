package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPutDocumentReplacesByName(t *testing.T) {
	s := &Store{}
	s.PutDocument(Document{Filename: "tz.pdf", FileSize: 1})
	s.PutDocument(Document{Filename: "prices.xlsx", FileSize: 2})
	s.PutDocument(Document{Filename: "TZ.pdf", FileSize: 3})

	assert.Len(t, s.Documents, 2)
	assert.Equal(t, int64(3), s.Documents[0].FileSize)
	assert.True(t, s.HasDocument("prices.XLSX"))
	assert.False(t, s.HasDocument("missing.doc"))
}

func TestClosedSets(t *testing.T) {
	assert.True(t, CategoryCompare.Valid())
	assert.False(t, Category("chat").Valid())
	assert.True(t, ComplexityComplex.Valid())
	assert.False(t, Complexity("hard").Valid())
	assert.True(t, ActionRenameStore.Valid())
	assert.False(t, ActionUnselect.Valid())
	assert.True(t, ActionDeleteStore.AdminOnly())
	assert.False(t, ActionListStores.AdminOnly())
}

func TestFallbackQuery(t *testing.T) {
	q := FallbackQuery("какие сроки?")
	assert.Equal(t, CategorySingle, q.Category)
	assert.Equal(t, "какие сроки?", q.Prompt)
	assert.Equal(t, ActionNone, q.Action)
	assert.Zero(t, q.Confidence)
	assert.Equal(t, ComplexityMedium, q.Complexity)
}

func TestStoreAnswerHasResult(t *testing.T) {
	assert.True(t, StoreAnswer{Answer: "x"}.HasResult())
	assert.False(t, StoreAnswer{}.HasResult())
	assert.False(t, StoreAnswer{Answer: "x", Err: ErrNotFound}.HasResult())
}
