// Package bridge connects installed JavaScript bundles to the capability
// model: it derives function lists from bundle text or manifests and
// invokes bundle functions inside an isolated runtime.
package bridge

import (
	"regexp"
	"strings"
)

var (
	functionsBlockPattern = regexp.MustCompile(`functions\s*:\s*\{`)
	handlerEntryPattern   = regexp.MustCompile(`(\w+)\s*:\s*\{\s*(?:[^{}]*\bhandler\s*:)`)
)

// reservedKeys never name a function in the fallback scan.
var reservedKeys = map[string]bool{
	"meta":      true,
	"functions": true,
	"Package":   true,
}

// ExtractFunctionNames returns the callable function names declared in a
// bundle, in first-seen order and without duplicates. It is a syntactic
// heuristic and never evaluates the text.
//
// When the text contains a "functions: { ... }" block, its top-level keys
// whose values are object literals are returned. When there is no such
// block, or it yields no names, any key whose object literal contains a
// handler property is returned.
func ExtractFunctionNames(text string) []string {
	if loc := functionsBlockPattern.FindStringIndex(text); loc != nil {
		if names := scanFunctionsBlock(text, loc[1]); len(names) > 0 {
			return names
		}
	}

	var names []string
	seen := make(map[string]bool)
	for _, m := range handlerEntryPattern.FindAllStringSubmatch(text, -1) {
		name := m[1]
		if reservedKeys[name] || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// scanFunctionsBlock walks the object literal starting at pos (just past
// its opening brace) and collects keys at depth 0 whose value opens with
// a brace.
func scanFunctionsBlock(src string, pos int) []string {
	var names []string
	seen := make(map[string]bool)
	depth := 0
	expectKey := true

	for i := pos; i < len(src); {
		if j := skipSpaceAndComments(src, i); j != i {
			i = j
			continue
		}

		if depth == 0 && expectKey {
			expectKey = false
			if name, end, ok := readKey(src, i); ok {
				j := skipSpaceAndComments(src, end)
				if j < len(src) && src[j] == ':' {
					j = skipSpaceAndComments(src, j+1)
					if j < len(src) && src[j] == '{' {
						if !seen[name] {
							seen[name] = true
							names = append(names, name)
						}
						depth++
						i = j + 1
						continue
					}
				}
				i = end
				continue
			}
		}

		switch c := src[i]; c {
		case '"', '\'', '`':
			i = skipString(src, i)
			continue
		case '{', '[', '(':
			depth++
		case '}', ']', ')':
			if depth == 0 {
				return names
			}
			depth--
		case ',':
			if depth == 0 {
				expectKey = true
			}
		}
		i++
	}
	return names
}

// readKey reads an identifier or a quoted identifier at i.
func readKey(src string, i int) (string, int, bool) {
	if i >= len(src) {
		return "", i, false
	}
	if c := src[i]; c == '"' || c == '\'' {
		end := skipString(src, i)
		name := src[i+1 : end-1]
		if end-1 <= i+1 || !isIdentifier(name) {
			return "", end, false
		}
		return name, end, true
	}
	if !isIdentStart(src[i]) {
		return "", i, false
	}
	end := i + 1
	for end < len(src) && isIdentPart(src[end]) {
		end++
	}
	return src[i:end], end, true
}

// skipString returns the index just past the string literal opening at i.
func skipString(src string, i int) int {
	quote := src[i]
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case quote:
			return j + 1
		}
	}
	return len(src)
}

func skipSpaceAndComments(src string, i int) int {
	for i < len(src) {
		switch {
		case src[i] == ' ' || src[i] == '\t' || src[i] == '\n' || src[i] == '\r':
			i++
		case strings.HasPrefix(src[i:], "//"):
			nl := strings.IndexByte(src[i:], '\n')
			if nl < 0 {
				return len(src)
			}
			i += nl + 1
		case strings.HasPrefix(src[i:], "/*"):
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				return len(src)
			}
			i += end + 4
		default:
			return i
		}
	}
	return i
}

func isIdentifier(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentPart(s[i]) {
			return false
		}
	}
	return true
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
