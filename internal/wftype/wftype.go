// Package wftype declares the fixed set of workflow content types that
// path tools consume and produce, and the metadata used to classify raw
// input into one of them.
package wftype

import "fmt"

// Type identifies the kind of content flowing along a workflow path.
type Type string

const (
	Image    Type = "IMAGE"
	Audio    Type = "AUDIO"
	Video    Type = "VIDEO"
	Text     Type = "TEXT"
	PDF      Type = "PDF"
	TextFile Type = "TEXT_FILE"
	Table    Type = "TABLE"
	JSON     Type = "JSON"
	None     Type = "NONE"
)

// All lists every declared type in a stable order, used for deterministic
// iteration (schema generation, graph construction, CLI output).
var All = []Type{Image, Audio, Video, Text, PDF, TextFile, Table, JSON, None}

// meta carries the static facts the classifier and planner need about a
// type beyond its name.
type meta struct {
	mimePrefixes []string
	extensions   []string
	display      string
}

var registry = map[Type]meta{
	Image:    {mimePrefixes: []string{"image/"}, extensions: []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp"}, display: "image"},
	Audio:    {mimePrefixes: []string{"audio/"}, extensions: []string{".mp3", ".wav", ".flac", ".ogg", ".m4a"}, display: "audio"},
	Video:    {mimePrefixes: []string{"video/"}, extensions: []string{".mp4", ".mov", ".mkv", ".webm"}, display: "video"},
	Text:     {mimePrefixes: []string{"text/plain"}, extensions: []string{".txt"}, display: "plain text"},
	PDF:      {mimePrefixes: []string{"application/pdf"}, extensions: []string{".pdf"}, display: "PDF document"},
	TextFile: {mimePrefixes: []string{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "application/msword"}, extensions: []string{".docx", ".doc", ".rtf"}, display: "word-processed document"},
	Table:    {mimePrefixes: []string{"text/csv", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"}, extensions: []string{".csv", ".xlsx", ".xls"}, display: "tabular data"},
	JSON:     {mimePrefixes: []string{"application/json"}, extensions: []string{".json"}, display: "JSON document"},
	None:     {display: "no attachment"},
}

// Valid reports whether t is a known, declared type.
func (t Type) Valid() bool {
	_, ok := registry[t]
	return ok
}

// Display returns a human-readable label for use in agent prompts and
// error messages.
func (t Type) Display() string {
	if m, ok := registry[t]; ok {
		return m.display
	}
	return string(t)
}

// FromExtension maps a lowercase file extension (including the leading
// dot) to the type that owns it, returning ("", false) when no type
// claims it.
func FromExtension(ext string) (Type, bool) {
	for _, t := range All {
		for _, e := range registry[t].extensions {
			if e == ext {
				return t, true
			}
		}
	}
	return "", false
}

// FromMIME maps a MIME type to the workflow type whose prefix matches it,
// longest prefix first so "application/vnd...spreadsheetml.sheet" doesn't
// get shadowed by a shorter "application/" entry that doesn't exist here
// but would in a naive unordered scan.
func FromMIME(mime string) (Type, bool) {
	var best Type
	var bestLen int
	for _, t := range All {
		for _, p := range registry[t].mimePrefixes {
			if len(mime) >= len(p) && mime[:len(p)] == p && len(p) > bestLen {
				best, bestLen = t, len(p)
			}
		}
	}
	if bestLen == 0 {
		return "", false
	}
	return best, true
}

// ErrUnknownType is returned when a caller supplies a type string that is
// not one of the declared constants.
type ErrUnknownType struct{ Got string }

func (e *ErrUnknownType) Error() string {
	return fmt.Sprintf("wftype: unknown workflow type %q", e.Got)
}

// Parse validates a raw string against the declared type set.
func Parse(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", &ErrUnknownType{Got: s}
	}
	return t, nil
}
