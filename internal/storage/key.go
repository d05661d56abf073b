package storage

import (
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// defaultExt is used when a filename carries no usable extension.
const defaultExt = "jpg"

// BuildKey derives a fresh object key for an image uploaded on behalf of
// owner: "{owner}/{random-id}.{ext}". The random id makes collisions
// practically impossible, so uploads never need overwrite semantics.
func BuildKey(owner, filename string) string {
	return owner + "/" + uuid.NewString() + "." + normalizeExt(filename)
}

// KeyFromPublicURL recovers the object key from a previously issued public
// URL by locating the "/{bucket}/" marker in its path. The second return
// value is false when the marker is absent or the URL cannot be parsed.
func KeyFromPublicURL(publicURL, bucket string) (string, bool) {
	marker := "/" + bucket + "/"

	u, err := url.Parse(publicURL)
	if err != nil {
		// Fall back to scanning the raw string.
		idx := strings.Index(publicURL, marker)
		if idx == -1 {
			return "", false
		}
		key, err := url.PathUnescape(publicURL[idx+len(marker):])
		if err != nil {
			return "", false
		}
		return key, true
	}

	idx := strings.Index(u.Path, marker)
	if idx == -1 {
		return "", false
	}
	key := u.Path[idx+len(marker):]
	if key == "" {
		return "", false
	}
	return key, true
}

// OwnedBy reports whether key sits under the owner's namespace. Callers must
// check this before deleting a key recovered from a stored URL, so a forged
// or stale URL can never remove another owner's object.
func OwnedBy(key, owner string) bool {
	return strings.HasPrefix(key, owner+"/")
}

// normalizeExt extracts the extension from filename, lowercases it, and
// strips everything outside [a-z0-9]. Empty results default to "jpg".
func normalizeExt(filename string) string {
	ext := filename
	if i := strings.LastIndex(filename, "."); i >= 0 {
		ext = filename[i+1:]
	}
	ext = strings.ToLower(ext)

	var b strings.Builder
	for _, r := range ext {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return defaultExt
	}
	return b.String()
}
