package service

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/liliang-cn/storerouter/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestChunk(t *testing.T) {
	assert.Equal(t, []string{"short"}, Chunk("short", 10))
	assert.Equal(t, []string{""}, Chunk("", 10))
	assert.Equal(t, []string{"abc", "def", "g"}, Chunk("abcdefg", 3))
	assert.Equal(t, []string{"привет", "мир"}, Chunk("приветмир", 6))
	assert.Equal(t, []string{"unlimited"}, Chunk("unlimited", 0))

	long := strings.Repeat("a", 9001)
	chunks := Chunk(long, 4000)
	assert.Len(t, chunks, 3)
	assert.Equal(t, long, strings.Join(chunks, ""))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound("Информация не найдена."))
	assert.True(t, IsNotFound("В документах нет информации об этом"))
	assert.True(t, IsNotFound("The documents do not contain pricing."))
	assert.True(t, IsNotFound("NOT FOUND"))
	assert.False(t, IsNotFound("Срок подачи: 1 марта."))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 3))
	assert.Equal(t, "ab...", Truncate("abc", 2))
	assert.Equal(t, "жж...", Truncate("жжж", 2))
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, MsgNoStores, ErrorMessage(fmt.Errorf("route: %w", domain.ErrNoStores)))
	assert.Equal(t, MsgAdminOnly, ErrorMessage(domain.ErrUnauthorized))
	assert.Equal(t, "Error: boom", ErrorMessage(errors.New("boom")))

	msg := ErrorMessage(errors.New(strings.Repeat("x", 500)))
	assert.Equal(t, "Error: "+strings.Repeat("x", 200)+"...", msg)
}
