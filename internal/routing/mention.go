package routing

import (
	"regexp"
	"strings"
	"sync"
)

// Hard mentions force an immediate flush and a mandatory reply. A name
// counts as hard-mentioned when it appears as @Name anywhere, or as a
// whole word opening a sentence: at the start of the text or right after
// ., !, ? or a newline (optionally with whitespace), followed by
// end-of-text, whitespace or one of ,:!?. A bare name mid-sentence, or
// embedded in a longer word, is ambient.

var (
	mentionMu    sync.Mutex
	mentionCache = map[string]*regexp.Regexp{}
)

func sentenceInitialRE(name string) *regexp.Regexp {
	mentionMu.Lock()
	defer mentionMu.Unlock()
	if re, ok := mentionCache[name]; ok {
		return re
	}
	re := regexp.MustCompile(`(?i)(?:^|[.!?\n])[ \t]*` + regexp.QuoteMeta(name) + `(?:$|[\s,:!?])`)
	mentionCache[name] = re
	return re
}

// IsHardMention reports whether text hard-mentions name.
func IsHardMention(text, name string) bool {
	if name == "" {
		return false
	}
	if strings.Contains(strings.ToLower(text), "@"+strings.ToLower(name)) {
		return true
	}
	return sentenceInitialRE(name).MatchString(text)
}

// FindHardMentions returns the subset of names hard-mentioned in text,
// preserving the input order.
func FindHardMentions(text string, names []string) []string {
	var mentioned []string
	for _, name := range names {
		if IsHardMention(text, name) {
			mentioned = append(mentioned, name)
		}
	}
	return mentioned
}
