// Package extract pulls fenced code blocks out of free-text model output.
package extract

import "strings"

// Block is one fenced code block found in model output. Distinguishing a
// missing block from an empty one matters: callers must never confuse
// "no block" with "empty block", so extraction returns (Block, bool).
type Block struct {
	Lang string
	Code string
}

// CodeBlock returns the first fenced code block in content. A block tagged
// with the given language is preferred; any other fenced block is the
// fallback.
func CodeBlock(content, lang string) (Block, bool) {
	if lang != "" {
		if b, ok := tagged(content, lang); ok {
			return b, true
		}
	}
	return generic(content)
}

// tagged finds a fence opened with ```<lang> followed by a line break.
func tagged(content, lang string) (Block, bool) {
	open := "```" + lang
	start := strings.Index(content, open)
	if start == -1 {
		return Block{}, false
	}
	rest := content[start+len(open):]
	if rest == "" || (rest[0] != '\n' && rest[0] != '\r') {
		return Block{}, false
	}
	end := strings.Index(rest, "```")
	if end == -1 {
		return Block{}, false
	}
	return Block{Lang: lang, Code: trimOpenBreak(rest[:end])}, true
}

// generic finds the first fence of any kind. Text between the opener and
// the first line break is treated as the language tag when present.
func generic(content string) (Block, bool) {
	start := strings.Index(content, "```")
	if start == -1 {
		return Block{}, false
	}
	rest := content[start+3:]
	end := strings.Index(rest, "```")
	if end == -1 {
		return Block{}, false
	}
	body := rest[:end]

	nl := strings.IndexByte(body, '\n')
	if nl == -1 {
		// Single-line fence, no tag to peel.
		return Block{Code: body}, true
	}
	tag := strings.TrimSpace(body[:nl])
	if tag == "" {
		return Block{Code: trimOpenBreak(body)}, true
	}
	return Block{Lang: tag, Code: body[nl+1:]}, true
}

func trimOpenBreak(s string) string {
	s = strings.TrimPrefix(s, "\r")
	return strings.TrimPrefix(s, "\n")
}
