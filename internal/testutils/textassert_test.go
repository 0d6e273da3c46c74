package testutils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingT struct {
	errors []string
}

func (r *recordingT) Errorf(format string, args ...interface{}) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func TestTextAsserterDefaults(t *testing.T) {
	// GOAL: Verify a fresh asserter compares texts exactly
	//
	// TEST SCENARIO: Default options → all normalizations off → trailing space is a difference

	opts := NewTextAsserter(t).GetOptions()
	assert.False(t, opts.TrimSpace, "TrimSpace MUST be off by default")
	assert.False(t, opts.StripANSI, "StripANSI MUST be off by default")
	assert.False(t, opts.NormalizeCRLF, "NormalizeCRLF MUST be off by default")

	rec := &recordingT{}
	NewTextAsserterWithInterface(rec).Assert("speed  2 \n", "speed  2\n")
	assert.Len(t, rec.errors, 1, "trailing whitespace MUST fail an exact comparison")
	assert.Contains(t, rec.errors[0], "unified diff", "failure MUST include a unified diff")
}

func TestTextAsserterNormalization(t *testing.T) {
	// GOAL: Verify every normalization option makes equivalent outputs compare equal
	//
	// TEST SCENARIO: Pairs of actual/expected texts with one option enabled → no reported error

	tests := []struct {
		name     string
		option   TextOption
		actual   string
		expected string
	}{
		{"trailing whitespace", WithIgnoreTrailingWhitespace(true), "a  \nb\t\n", "a\nb\n"},
		{"empty lines", WithIgnoreEmptyLines(true), "a\n\n\nb", "a\nb"},
		{"trim space", WithTrimSpace(true), "\n  a\nb  \n", "a\nb"},
		{"ansi", WithStripANSI(true), "\x1b[2A\x1b[2K\x1b[36;1mspeed\x1b[0m  \x1b[32m2\x1b[0m", "speed  2"},
		{"crlf", WithNormalizeCRLF(true), "speed=2\r\nangle=90\r\n", "speed=2\nangle=90\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingT{}
			NewTextAsserterWithInterface(rec).WithOptions(tt.option).Assert(tt.actual, tt.expected)
			assert.Empty(t, rec.errors, "normalized texts MUST compare equal")
		})
	}
}

func TestTextAsserterColoredDiff(t *testing.T) {
	// GOAL: Verify colored diffs make whitespace visible
	//
	// TEST SCENARIO: Texts differing by a tab with colors enabled → diff shows the arrow marker

	rec := &recordingT{}
	NewTextAsserterWithInterface(rec).WithOptions(WithEnableColors(true)).Assert("a\tb\n", "a b\n")

	if assert.Len(t, rec.errors, 1, "different texts MUST fail") {
		assert.Contains(t, rec.errors[0], "→", "tabs MUST be rendered visibly")
		assert.Contains(t, rec.errors[0], "·", "spaces MUST be rendered visibly")
		assert.Contains(t, rec.errors[0], "\x1b[", "diff MUST be colorized")
	}
}
