package workflow

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheKey(t *testing.T) {
	files := []DependencyFile{
		{Path: "requirements/base.txt", Content: []byte("aiohttp==3.5\n")},
		{Path: "requirements/test.txt", Content: []byte("pytest==5.0\n")},
	}

	t.Run("success - key is stable for same inputs", func(t *testing.T) {
		// act
		first := CacheKey("ubuntu-latest", "3.7", files)
		second := CacheKey("ubuntu-latest", "3.7", files)

		// assert
		assert.Equal(t, first, second)
		assert.True(t, strings.HasPrefix(first, "ubuntu-latest-3.7-deps-"))
	})
	t.Run("success - key changes when a dependency file changes", func(t *testing.T) {
		// arrange
		changed := []DependencyFile{
			{Path: "requirements/base.txt", Content: []byte("aiohttp==3.6\n")},
			{Path: "requirements/test.txt", Content: []byte("pytest==5.0\n")},
		}

		// act & assert
		assert.NotEqual(
			t,
			CacheKey("ubuntu-latest", "3.7", files),
			CacheKey("ubuntu-latest", "3.7", changed),
		)
	})
	t.Run("success - key changes with os and version", func(t *testing.T) {
		assert.NotEqual(
			t,
			CacheKey("ubuntu-latest", "3.7", files),
			CacheKey("macos-latest", "3.7", files),
		)
		assert.NotEqual(
			t,
			CacheKey("ubuntu-latest", "3.7", files),
			CacheKey("ubuntu-latest", "3.6", files),
		)
	})
}

func TestRestoreKeys(t *testing.T) {
	t.Run("success - most specific prefix first", func(t *testing.T) {
		// act
		keys := RestoreKeys("ubuntu-latest", "3.7")

		// assert
		assert.Equal(t, []string{"ubuntu-latest-3.7-", "ubuntu-latest-"}, keys)
	})
	t.Run("success - exact key matches its own restore prefixes", func(t *testing.T) {
		// arrange
		key := CacheKey("ubuntu-latest", "3.7", nil)

		// assert
		for _, prefix := range RestoreKeys("ubuntu-latest", "3.7") {
			assert.True(t, strings.HasPrefix(key, prefix))
		}
	})
}
