package ingest

import (
	"log"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// Alt text longer than this is assumed to be decorative filler
const maxAltLength = 100

var converter = newConverter()

func newConverter() *md.Converter {
	conv := md.NewConverter("", true, nil)
	conv.Remove("script", "style")

	// Articles are stored as text, so images become their alt text when it
	// says something, and disappear when it does not
	conv.AddRules(md.Rule{
		Filter: []string{"img"},
		Replacement: func(content string, selec *goquery.Selection, opt *md.Options) *string {
			alt := strings.TrimSpace(selec.AttrOr("alt", ""))
			if alt == "" || len(alt) > maxAltLength || isGenericAlt(alt) {
				return md.String("")
			}
			return md.String("**" + alt + "**")
		},
	})

	return conv
}

func convertHTMLToMarkdown(content string) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}

	markdown, err := converter.ConvertString(content)
	if err != nil {
		log.Printf("Warning: failed to convert content to markdown: %v", err)
		return strings.TrimSpace(content)
	}

	return strings.TrimSpace(markdown)
}

// isGenericAlt reports whether alt text carries no information of its own,
// like "image" or "company logo"
func isGenericAlt(alt string) bool {
	words := strings.Fields(strings.ToLower(alt))
	if len(words) == 0 || len(words) > 2 {
		return false
	}

	generic := map[string]bool{
		"image":   true,
		"photo":   true,
		"picture": true,
		"logo":    true,
		"icon":    true,
		"graphic": true,
		"banner":  true,
	}
	return generic[words[len(words)-1]]
}

func normalizeSymbols(symbols []string) []string {
	seen := make(map[string]bool)
	var normalized []string

	for _, symbol := range symbols {
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		if symbol == "" || seen[symbol] {
			continue
		}
		seen[symbol] = true
		normalized = append(normalized, symbol)
	}

	return normalized
}
