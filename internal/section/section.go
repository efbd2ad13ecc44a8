package section

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrNotFound is returned when no section with the requested label matches.
	ErrNotFound = errors.New("section not found")

	// ErrEmptyLabel is returned when the label is blank.
	ErrEmptyLabel = errors.New("section label is empty")
)

// Pattern describes how a labeled section is delimited in the text.
// Open and Close are matched literally; Terminator is a regular expression
// fragment that must follow Close and marks the start of the next key.
type Pattern struct {
	Open       string `yaml:"open"`
	Close      string `yaml:"close"`
	Terminator string `yaml:"terminator"`
}

// DefaultPattern matches `"Label": [ ... ],` followed by the next quoted key.
var DefaultPattern = Pattern{
	Open:       "[",
	Close:      "]",
	Terminator: `,\s*"`,
}

// Section is one labeled block found in a document.
// Start/End span the label through the closing bracket; the terminator
// is never part of the span.
type Section struct {
	Label     string
	Body      string
	Start     int
	End       int
	BodyStart int
	BodyEnd   int
}

// Validate checks that both brackets are set and the terminator compiles.
func (p Pattern) Validate() error {
	if p.Open == "" || p.Close == "" {
		return fmt.Errorf("pattern brackets must not be empty (open=%q close=%q)", p.Open, p.Close)
	}
	if _, err := regexp.Compile(p.Terminator); err != nil {
		return fmt.Errorf("invalid terminator %q: %w", p.Terminator, err)
	}
	return nil
}

// WithDefaults fills unset fields from DefaultPattern.
func (p Pattern) WithDefaults() Pattern {
	if p.Open == "" {
		p.Open = DefaultPattern.Open
	}
	if p.Close == "" {
		p.Close = DefaultPattern.Close
	}
	if p.Terminator == "" {
		p.Terminator = DefaultPattern.Terminator
	}
	return p
}

// Key returns the quoted form of a label as it appears in the document.
// Labels that already carry their quotes are returned unchanged.
func Key(label string) string {
	if len(label) >= 2 && strings.HasPrefix(label, `"`) && strings.HasSuffix(label, `"`) {
		return label
	}
	return `"` + label + `"`
}

// Label returns label without surrounding double quotes, so "Topic A" and
// Topic A name the same section wherever labels are stored or compared.
func Label(label string) string {
	return strings.TrimSuffix(strings.TrimPrefix(Key(label), `"`), `"`)
}

func (p Pattern) compile(label string) (*regexp.Regexp, error) {
	if strings.TrimSpace(label) == "" {
		return nil, ErrEmptyLabel
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	expr := `(?s)` + regexp.QuoteMeta(Key(label)) + `\s*:\s*` + regexp.QuoteMeta(p.Open) +
		`(.*?)` + regexp.QuoteMeta(p.Close) + `(?:` + p.Terminator + `)`
	return regexp.Compile(expr)
}

// Locate finds the first section with the given label. The body is captured
// lazily: it ends at the nearest Close that is followed by the terminator,
// so inner brackets of nested entries do not end the section early.
func Locate(text, label string, p Pattern) (*Section, error) {
	re, err := p.compile(label)
	if err != nil {
		return nil, err
	}

	loc := re.FindStringSubmatchIndex(text)
	if loc == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, Key(label))
	}

	bodyStart, bodyEnd := loc[2], loc[3]
	return &Section{
		Label:     label,
		Body:      text[bodyStart:bodyEnd],
		Start:     loc[0],
		End:       bodyEnd + len(p.Close),
		BodyStart: bodyStart,
		BodyEnd:   bodyEnd,
	}, nil
}

// Extract returns the section body of label in a source document.
func Extract(text, label string, p Pattern) (*Section, error) {
	return Locate(text, label, p)
}

// Splice replaces the body of the first section labeled label with body.
// Everything outside the body span (header, closing bracket, trailing
// delimiter and the rest of the document) is kept byte for byte.
// The returned Section describes the destination section before the change.
func Splice(text, label, body string, p Pattern) (string, *Section, error) {
	sec, err := Locate(text, label, p)
	if err != nil {
		return text, nil, err
	}

	var b strings.Builder
	b.Grow(len(text) - len(sec.Body) + len(body))
	b.WriteString(text[:sec.BodyStart])
	b.WriteString(body)
	b.WriteString(text[sec.BodyEnd:])
	return b.String(), sec, nil
}

// Count reports how many non-overlapping sections carry label.
func Count(text, label string, p Pattern) (int, error) {
	re, err := p.compile(label)
	if err != nil {
		return 0, err
	}

	// Resume after each closing bracket: the terminator swallows the
	// opening quote of the next key.
	n, pos := 0, 0
	for pos < len(text) {
		loc := re.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		n++
		pos += loc[3] + len(p.Close)
	}
	return n, nil
}
