package thread

import (
	"regexp"
	"strings"
)

// AliasRule is one named way of pulling participant aliases out of a header
// block. Rules are independent so each can be tested on its own.
type AliasRule struct {
	Name    string
	Extract func(text string) []string
}

var (
	emailToken  = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,6}`)
	angleBlock  = regexp.MustCompile(`\s*<[^>]*>\s*,?`)
	lastFirst   = regexp.MustCompile(`^\w[\w'-]*,\s+\S`)
	quoteMarker = regexp.MustCompile(`(?m)^[ \t]*>+[ \t]?`)
	ccLabel     = regexp.MustCompile(`\n[ \t>]*(?i:cc):`)
	trailingTag = regexp.MustCompile(`\s*[\[(<].*$`)
)

// AddressList handles plain comma separated address headers (From, To, Cc).
var AddressList = AliasRule{
	Name: "address-list",
	Extract: func(text string) []string {
		var out []string
		for _, part := range strings.Split(text, ",") {
			part = strings.TrimSpace(part)
			if strings.Contains(part, "@") {
				out = append(out, part)
			}
		}
		return out
	},
}

// DisplayNames handles the X- headers: "Last, First <directory path>" entries,
// "Name <address>" entries and bare addresses. Addresses inside an angle
// block are kept; directory paths are dropped.
var DisplayNames = AliasRule{
	Name: "display-names",
	Extract: func(text string) []string {
		text = angleBlock.ReplaceAllStringFunc(text, func(block string) string {
			return ";" + strings.Join(emailToken.FindAllString(block, -1), ";") + ";"
		})
		var out []string
		for _, piece := range strings.Split(text, ";") {
			piece = strings.Trim(strings.TrimSpace(piece), ", ")
			if piece == "" {
				continue
			}
			if emails := emailToken.FindAllString(piece, -1); len(emails) > 0 {
				out = append(out, emails...)
				continue
			}
			if lastFirst.MatchString(piece) {
				out = append(out, piece)
			}
		}
		return out
	},
}

// QuotedRecipients handles recipients inside quoted replies, which are
// separated by semicolons and often written "Last, First [mailto:...]".
var QuotedRecipients = AliasRule{
	Name: "quoted-recipients",
	Extract: func(text string) []string {
		text = ccLabel.ReplaceAllString(text, ";")
		text = strings.ReplaceAll(text, "\n", " ")
		var out []string
		for _, piece := range strings.Split(text, ";") {
			piece = strings.TrimSpace(piece)
			if piece == "" {
				continue
			}
			if email := emailToken.FindString(piece); email != "" {
				out = append(out, email)
				continue
			}
			if lastFirst.MatchString(piece) {
				out = append(out, strings.TrimSpace(trailingTag.ReplaceAllString(piece, "")))
				continue
			}
			out = append(out, piece)
		}
		return out
	},
}

// firstAlias applies rule and falls back to the whole text when nothing matched.
func firstAlias(rule AliasRule, text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if found := rule.Extract(text); len(found) > 0 {
		return found[0]
	}
	return text
}

func stripQuoteMarkers(text string) string {
	return quoteMarker.ReplaceAllString(text, "")
}
