package thread

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dhcgn/threadgraph/model"
)

// Separator splits a thread into the parent message and its quoted replies.
const Separator = "-----Original Message-----"

var (
	ErrMissingBody   = errors.New("parent message body missing")
	ErrMissingDate   = errors.New("parent date missing")
	ErrMalformedDate = errors.New("malformed date")
)

// MessageCache is the shared content-hash to zone mapping.
type MessageCache interface {
	LookupMessage(hash string) (*time.Location, bool)
	ClaimMessage(hash string, loc *time.Location) (*time.Location, bool)
}

// field captures the header text between two labels.
type field struct {
	re *regexp.Regexp
}

func between(start, end string) field {
	pattern := `(?s)(?:^|\n)[ \t>]*` + regexp.QuoteMeta(start) + `:[ \t]*(.*?)\n[ \t>]*` + regexp.QuoteMeta(end) + `:`
	return field{re: regexp.MustCompile(pattern)}
}

func (f field) find(text string) (string, bool) {
	m := f.re.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

var (
	parentBody  = regexp.MustCompile(`(?s)X-bcc:[^\n]*\n(.*)`)
	parentDate  = regexp.MustCompile(`(?m)^Date:[ \t]*(.*?)\r?$`)
	quotedBody  = regexp.MustCompile(`(?s)Subject:[^\n]*\n(.*)`)
	quotedDate  = regexp.MustCompile(`(?m)^[ \t>]*(?:Sent|Date):[ \t]*([^\n]*)`)
	quotedTitle = regexp.MustCompile(`Subject:[ \t]*([^\n]*)`)
	quotedFrom  = regexp.MustCompile(`(?m)^[ \t>]*From:[ \t]*(.*?)\r?$`)
	headerFrom  = regexp.MustCompile(`(?m)^From:[ \t]*(.*?)\r?$`)

	parentSubject = between("Subject", "Mime-Version")
	quotedTo      = between("To", "Subject")

	headerTo   = between("To", "Subject")
	headerCc   = between("Cc", "Mime-Version")
	xFrom      = between("X-From", "X-To")
	xTo        = between("X-To", "X-cc")
	xCc        = between("X-cc", "X-bcc")
)

// Result is everything one thread produced.
type Result struct {
	Messages []model.RawMessage
	// ParentHash is set even when the parent itself was a duplicate.
	ParentHash      string
	ParentDuplicate bool
	Location        *time.Location
	// Dropped holds quoted messages that failed to parse.
	Dropped []error
}

type Parser struct {
	cache MessageCache
}

func NewParser(cache MessageCache) *Parser {
	return &Parser{cache: cache}
}

// Parse splits a canonical thread and extracts the parent and every quoted
// message not already seen in the run.
func (p *Parser) Parse(text string) (Result, error) {
	segments := strings.Split(text, Separator)

	parent, loc, duplicate, err := p.parseParent(segments[0])
	if err != nil {
		return Result{}, err
	}

	res := Result{
		ParentHash:      parent.Hash,
		ParentDuplicate: duplicate,
		Location:        loc,
	}
	if !duplicate {
		res.Messages = append(res.Messages, parent)
	}

	for i, segment := range segments[1:] {
		msg, ok, err := p.parseQuoted(segment, loc, parent.Hash)
		if err != nil {
			res.Dropped = append(res.Dropped, fmt.Errorf("quoted message %d: %w", i+1, err))
			continue
		}
		if ok {
			res.Messages = append(res.Messages, msg)
		}
	}
	return res, nil
}

func (p *Parser) parseParent(segment string) (model.RawMessage, *time.Location, bool, error) {
	m := parentBody.FindStringSubmatch(segment)
	if m == nil {
		return model.RawMessage{}, nil, false, ErrMissingBody
	}
	hash := Hash(m[1])

	if loc, ok := p.cache.LookupMessage(hash); ok {
		return model.RawMessage{Hash: hash}, loc, true, nil
	}

	dm := parentDate.FindStringSubmatch(segment)
	if dm == nil {
		return model.RawMessage{}, nil, false, ErrMissingDate
	}
	date, err := ParseParentDate(dm[1])
	if err != nil {
		return model.RawMessage{}, nil, false, err
	}

	loc, claimed := p.cache.ClaimMessage(hash, date.Location())
	if !claimed {
		return model.RawMessage{Hash: hash}, loc, true, nil
	}

	subject, _ := parentSubject.find(segment)
	subject = unfold(subject)

	var aliases, senders []string
	for _, f := range []field{headerTo, headerCc} {
		if text, ok := f.find(segment); ok {
			aliases = append(aliases, AddressList.Extract(text)...)
		}
	}
	for _, f := range []field{xTo, xCc} {
		if text, ok := f.find(segment); ok {
			aliases = append(aliases, DisplayNames.Extract(text)...)
		}
	}
	if fm := headerFrom.FindStringSubmatch(segment); fm != nil {
		senders = append(senders, firstAlias(AddressList, fm[1]))
	}
	if text, ok := xFrom.find(segment); ok {
		senders = append(senders, firstAlias(DisplayNames, text))
	}

	return model.RawMessage{
		Hash:     hash,
		Date:     date,
		NormDate: model.NormalizeDate(date),
		Subject:  subject,
		Aliases:  model.StringSet(aliases...),
		Sender:   model.StringSet(senders...),
	}, loc, false, nil
}

// parseQuoted reports ok=false for segments without a body and for bodies
// already claimed elsewhere in the run.
func (p *Parser) parseQuoted(segment string, loc *time.Location, parentHash string) (model.RawMessage, bool, error) {
	m := quotedBody.FindStringSubmatch(segment)
	if m == nil {
		return model.RawMessage{}, false, nil
	}
	hash := Hash(stripQuoteMarkers(m[1]))

	if _, claimed := p.cache.ClaimMessage(hash, loc); !claimed {
		return model.RawMessage{}, false, nil
	}

	dm := quotedDate.FindStringSubmatch(segment)
	if dm == nil {
		return model.RawMessage{}, false, fmt.Errorf("%w: no Sent or Date line", ErrMalformedDate)
	}
	date, err := ParseQuotedDate(dm[1], loc)
	if err != nil {
		return model.RawMessage{}, false, err
	}

	var subject string
	if sm := quotedTitle.FindStringSubmatch(segment); sm != nil {
		subject = strings.TrimSpace(sm[1])
	}

	var aliases, senders []string
	if fm := quotedFrom.FindStringSubmatch(segment); fm != nil {
		if from := firstAlias(QuotedRecipients, fm[1]); from != "" {
			senders = append(senders, from)
		}
	}
	if text, ok := quotedTo.find(segment); ok {
		aliases = append(aliases, QuotedRecipients.Extract(text)...)
	}

	return model.RawMessage{
		Hash:       hash,
		Date:       date,
		NormDate:   model.NormalizeDate(date),
		Subject:    subject,
		Aliases:    model.StringSet(aliases...),
		Sender:     model.StringSet(senders...),
		ParentHash: parentHash,
	}, true, nil
}

// unfold keeps the first header line plus its whitespace-led continuations.
func unfold(value string) string {
	lines := strings.Split(value, "\n")
	out := []string{strings.TrimSpace(lines[0])}
	for _, line := range lines[1:] {
		if line == "" || (line[0] != ' ' && line[0] != '\t') {
			break
		}
		out = append(out, strings.TrimSpace(line))
	}
	return strings.Join(out, " ")
}
