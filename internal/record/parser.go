// Package record splits raw delimited text lines into field strings.
package record

// Default delimiter and quote characters for comma-separated input.
const (
	DefaultDelimiter = ','
	DefaultQuote     = '"'
)

// Parser splits one line into fields. A quote character toggles the
// in-quote state; delimiters inside quotes are kept as field content.
// It is a plain left-to-right scan and never fails: conversion of the
// returned strings is left to the row builder.
type Parser struct {
	Delimiter byte
	Quote     byte
}

// NewParser returns a comma/double-quote parser.
func NewParser() Parser {
	return Parser{Delimiter: DefaultDelimiter, Quote: DefaultQuote}
}

// Parse splits line into fields. The final field is always emitted, so an
// empty line yields a single empty field. Each field has at most one leading
// and one trailing quote stripped; embedded escaped quotes are not unescaped.
func (p Parser) Parse(line string) []string {
	delim, quote := p.Delimiter, p.Quote
	if delim == 0 {
		delim = DefaultDelimiter
	}
	if quote == 0 {
		quote = DefaultQuote
	}

	fields := make([]string, 0, 16)
	inQuotes := false
	start := 0
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == quote:
			inQuotes = !inQuotes
		case c == delim && !inQuotes:
			fields = append(fields, trimQuotes(line[start:i], quote))
			start = i + 1
		}
	}
	fields = append(fields, trimQuotes(line[start:], quote))
	return fields
}

// Parse splits line with the default comma/double-quote parser.
func Parse(line string) []string {
	return NewParser().Parse(line)
}

func trimQuotes(s string, quote byte) string {
	if len(s) > 0 && s[0] == quote {
		s = s[1:]
	}
	if len(s) > 0 && s[len(s)-1] == quote {
		s = s[:len(s)-1]
	}
	return s
}
