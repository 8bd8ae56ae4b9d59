// Package protocol defines the reply grammar the agent core speaks with a
// model: delimited action blocks with YAML bodies, plus the out-of-band
// completion marker. The grammar is a strict contract; malformed blocks get
// one bounded repair attempt and then an explicit, model-readable rejection.
package protocol

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultCompletionMarker is the literal token that signals task completion
// when found anywhere in a reply. Its spelling is configuration, not logic.
const DefaultCompletionMarker = "<!!!COMPLETE!!!>"

// OpenTag returns the opening delimiter for a named action block.
func OpenTag(name string) string { return "<" + name + ">" }

// CloseTag returns the closing delimiter for a named action block.
func CloseTag(name string) string { return "</" + name + ">" }

// HasBlock reports whether text contains the opening tag for name. A reply
// with an opening tag is considered addressed to that action even when the
// block is malformed; the parser then produces repair guidance instead of
// silently dropping it.
func HasBlock(text, name string) bool {
	return strings.Contains(text, OpenTag(name))
}

// ExtractBlocks returns the raw bodies of all name-delimited blocks in
// text. Line endings are normalized first. A missing closing tag is
// repaired exactly once by appending it; repaired reports whether that
// happened.
func ExtractBlocks(text, name string) (blocks []string, repaired bool) {
	normalized := normalize(text)

	open := OpenTag(name)
	close := CloseTag(name)
	if strings.Contains(normalized, open) && !strings.Contains(normalized, close) {
		normalized += "\n" + close
		repaired = true
	}

	pattern := regexp.MustCompile(
		`(?s)` + regexp.QuoteMeta(open) + `[ \t]*\n(.*?)\n?[ \t]*` + regexp.QuoteMeta(close),
	)
	for _, m := range pattern.FindAllStringSubmatch(normalized, -1) {
		blocks = append(blocks, m[1])
	}
	if len(blocks) > 0 {
		return blocks, repaired
	}

	// Inline fallback for blocks without newlines around the tags.
	alt := regexp.MustCompile(
		`(?s)` + regexp.QuoteMeta(open) + `[ \t]*(.*?)[ \t]*` + regexp.QuoteMeta(close),
	)
	for _, m := range alt.FindAllStringSubmatch(normalized, -1) {
		blocks = append(blocks, m[1])
	}
	return blocks, repaired
}

// DecodeBlock parses a raw block body as YAML into out.
func DecodeBlock(raw string, out any) error {
	if err := yaml.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("decode %q block: %w", firstLine(raw), err)
	}
	return nil
}

// ContainsCompletion reports whether the reply carries the completion
// marker. An empty marker never matches.
func ContainsCompletion(reply, marker string) bool {
	if marker == "" {
		return false
	}
	return strings.Contains(reply, marker)
}

// MissingCloseGuidance builds the rejection text returned to the model
// when an opening tag has no closing tag and repair still failed to yield
// a parseable block.
func MissingCloseGuidance(name string) string {
	return fmt.Sprintf(
		"Found %s without its closing tag %s.\n"+
			"Fix: append the closing tag, with each tag on its own line:\n%s\nkey: value\n%s",
		OpenTag(name), CloseTag(name), OpenTag(name), CloseTag(name),
	)
}

// MalformedGuidance builds the rejection text for a block that was
// delimited correctly but whose body could not be parsed.
func MalformedGuidance(name string, err error) string {
	return fmt.Sprintf(
		"The %s block could not be parsed: %v.\n"+
			"Fix: the body must be valid YAML. Use a multi-line block scalar for long values:\n"+
			"%s\nto: TargetName\ncontent: |2\n  message body here\n%s",
		name, err, OpenTag(name), CloseTag(name),
	)
}

// MissingFieldsGuidance builds the rejection text for a block missing
// required fields.
func MissingFieldsGuidance(name string, fields []string) string {
	return fmt.Sprintf(
		"The %s block is missing required fields: %s.\n"+
			"Fix: include every required field, for example:\n"+
			"%s\nto: TargetName\ncontent: |2\n  message body here\n%s",
		name, strings.Join(fields, ", "), OpenTag(name), CloseTag(name),
	)
}

func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
