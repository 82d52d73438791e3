// Package storage owns the on-disk shape of a cache collection: obfuscated
// base names derived from cache ids, the file group behind each cache, and
// footprint measurement and trimming across the whole directory.
package storage

import (
	"slices"
	"strings"
)

// The character policy partitions ASCII three ways: an allow-list of
// filesystem-safe characters substituted positionally, a fixed map of
// filesystem-illegal characters to two-character escape tokens, and
// everything else, which makes a cache id invalid.
//
// allowedCharacters doubles as the substitution alphabet. Its order is a
// compatibility contract: changing it orphans every cache already on disk.
const allowedCharacters = "!#$%&'()+,-0123456789;=@ABCDEFGHIJKLMNOPQRSTUVWXYZ[]^_abcdefghijklmnopqrstuvwxyz{}~"

// rotationOffset shifts each allow-listed character to a different one.
// The mapping is one-way on purpose: base names are always derived fresh
// from ids and never decoded, so ids never appear verbatim on disk.
const rotationOffset = 41

// escapeCharacter prefixes escape tokens. It belongs to neither character
// set, so a token can never collide with a rotated character, and a cache
// id containing it is invalid.
const escapeCharacter = '`'

var illegalCharacters = map[byte]string{
	'\\': "`b",
	'/':  "`f",
	'|':  "`p",
	'<':  "`l",
	'>':  "`g",
	':':  "`c",
	'"':  "`q",
	'?':  "`m",
	'*':  "`a",
	'\n': "`n",
}

var allowedIndex = buildAllowedIndex()

func buildAllowedIndex() [256]int {
	var index [256]int
	for i := range index {
		index[i] = -1
	}
	for i := 0; i < len(allowedCharacters); i++ {
		index[allowedCharacters[i]] = i
	}
	return index
}

// BaseNameFromCacheID derives the on-disk base name for a cache id.
// It returns "" when the id is empty or contains a character with no
// defined replacement; callers must treat "" as misuse, never as a name.
func BaseNameFromCacheID(cacheID string) string {
	if cacheID == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(cacheID))
	for i := 0; i < len(cacheID); i++ {
		c := cacheID[i]
		if idx := allowedIndex[c]; idx >= 0 {
			b.WriteByte(allowedCharacters[(idx+rotationOffset)%len(allowedCharacters)])
			continue
		}
		if token, ok := illegalCharacters[c]; ok {
			b.WriteString(token)
			continue
		}
		return ""
	}
	return b.String()
}

// DirSafeCacheID reports whether cacheID can serve directly as a single
// directory name: non-empty and built only from allow-listed characters.
// Escapable characters are encodable by BaseNameFromCacheID but must never
// appear in a literal path element.
func DirSafeCacheID(cacheID string) bool {
	if cacheID == "" {
		return false
	}
	for i := 0; i < len(cacheID); i++ {
		if allowedIndex[cacheID[i]] < 0 {
			return false
		}
	}
	return true
}

// AllowedCacheIDCharacters returns every character a cache id may contain:
// the allow-list plus the keys of the illegal-character map.
func AllowedCacheIDCharacters() string {
	keys := make([]byte, 0, len(illegalCharacters))
	for c := range illegalCharacters {
		keys = append(keys, c)
	}
	slices.Sort(keys)
	return allowedCharacters + string(keys)
}
