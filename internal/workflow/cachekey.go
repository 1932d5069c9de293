package workflow

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DependencyFile is one dependency-declaration file as read from the
// repository checkout on the agent.
type DependencyFile struct {
	Path    string
	Content []byte
}

// CacheKey derives the dependency-cache key for a cell. The key
// changes whenever any declared dependency file changes, or the OS or
// runtime version does. Files are hashed in declared order, so the
// key is a pure function of its inputs.
func CacheKey(osName, version string, files []DependencyFile) string {
	h := sha256.New()
	for _, f := range files {
		fmt.Fprintf(h, "%s\n", f.Path)
		h.Write(f.Content)
		h.Write([]byte{0})
	}
	digest := hex.EncodeToString(h.Sum(nil))
	return fmt.Sprintf("%sdeps-%s", RestoreKeys(osName, version)[0], digest)
}

// RestoreKeys returns the prefix fallbacks for a cell, most specific
// first. A restored entry under a fallback prefix may be stale; the
// cache is advisory only, so that is a performance concern, not a
// correctness one.
func RestoreKeys(osName, version string) []string {
	return []string{
		fmt.Sprintf("%s-%s-", osName, version),
		fmt.Sprintf("%s-", osName),
	}
}
