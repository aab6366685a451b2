package pipeline

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/quillforge/quill/internal/storage"
)

// titlePrefixRunes is how much of the generated body is sent to the
// provider's title endpoint.
const titlePrefixRunes = 2000

// maxTitleRunes bounds the fallback title length, ellipsis included.
const maxTitleRunes = 60

// depthDescriptions maps research depth 1-5 to an ascending description
// of research thoroughness for the provider instruction block.
var depthDescriptions = map[int]string{
	1: "a quick survey of readily available sources",
	2: "a light review of the main sources",
	3: "a balanced review of multiple reputable sources",
	4: "a thorough investigation across many sources",
	5: "an exhaustive deep-dive across all available sources",
}

const defaultDepth = 3

// buildInstructions assembles the natural-language instruction block for
// the provider from the merged generation config. An out-of-range
// research depth falls back to the depth-3 description.
func buildInstructions(cfg storage.GenerationConfig) string {
	var b strings.Builder

	if cfg.Style != "" {
		fmt.Fprintf(&b, "Write in a %s style. ", cfg.Style)
	}
	if cfg.Tone != "" {
		fmt.Fprintf(&b, "Keep the tone %s. ", cfg.Tone)
	}

	if cfg.ResearchEnabled {
		desc, ok := depthDescriptions[cfg.ResearchDepth]
		if !ok {
			desc = depthDescriptions[defaultDepth]
		}
		fmt.Fprintf(&b, "Base the content on %s. ", desc)
	} else {
		b.WriteString("Do not perform external research. ")
	}

	if cfg.Instructions != "" {
		b.WriteString(cfg.Instructions)
	}

	return strings.TrimSpace(b.String())
}

// FallbackTitle is the deterministic local title used when the provider's
// title endpoint fails: "The Complete Guide to <Title-Cased Topic>",
// truncated to 60 runes ending in an ellipsis when longer.
func FallbackTitle(topic string) string {
	title := "The Complete Guide to " + titleCase(topic)
	if utf8.RuneCountInString(title) > maxTitleRunes {
		title = runePrefix(title, maxTitleRunes-3) + "..."
	}
	return title
}

// titleCase upper-cases the first letter of each whitespace-separated
// word. strings.Title is deprecated and cases every rune; this only
// touches word-initial letters.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

// runePrefix returns the first n runes of s without splitting a rune.
func runePrefix(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
