// Package report renders summaries of staged headline records.
package report

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"newsetl/pkg/utils"
)

// ErrMalformedRecord is returned for a staged file that is neither a source
// nor a keyword headline record.
var ErrMalformedRecord = errors.New("malformed headline record")

// MaxHeadlineWidth bounds the top headline column, in runes.
const MaxHeadlineWidth = 60

// Entry is one staged headline record, labelled by source name or keyword.
type Entry struct {
	Label     string
	File      string
	Headlines []string
}

// Store lists and reads staged JSON files.
type Store interface {
	ListJSONFiles(dir string) ([]string, error)
	ReadJSON(path string) (map[string]any, error)
}

// LoadHeadlineRecords reads every staged record in dir, in file order.
func LoadHeadlineRecords(dir string, store Store) ([]Entry, error) {
	files, err := store.ListJSONFiles(dir)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(files))

	for _, name := range files {
		doc, err := store.ReadJSON(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}

		entry, err := entryFrom(doc)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		entry.File = name
		entries = append(entries, entry)
	}

	return entries, nil
}

func entryFrom(doc map[string]any) (Entry, error) {
	raw, ok := doc["headlines"].([]any)
	if !ok {
		return Entry{}, fmt.Errorf("%w: missing headlines", ErrMalformedRecord)
	}

	headlines := make([]string, 0, len(raw))

	for _, h := range raw {
		if s, ok := h.(string); ok {
			headlines = append(headlines, s)
		}
	}

	if src, ok := doc["source"].(map[string]any); ok {
		label, _ := src["name"].(string)
		if label == "" {
			label, _ = src["id"].(string)
		}

		return Entry{Label: label, Headlines: headlines}, nil
	}

	if keyword, ok := doc["keyword"].(string); ok {
		return Entry{Label: keyword, Headlines: headlines}, nil
	}

	return Entry{}, fmt.Errorf("%w: no source or keyword", ErrMalformedRecord)
}

// HeadlineSummary renders entries as an aligned markdown table.
func HeadlineSummary(entries []Entry) string {
	strs := utils.NewStringHelper()

	rows := []string{
		"| Source | Headlines | Top headline |",
		"| --- | --- | --- |",
	}

	for _, e := range entries {
		top := ""
		if len(e.Headlines) > 0 {
			top = strs.TruncateString(strs.NormalizeWhitespace(e.Headlines[0]), MaxHeadlineWidth)
		}

		rows = append(rows, fmt.Sprintf("| %s | %s | %s |",
			cell(strs.NormalizeWhitespace(e.Label)), strconv.Itoa(len(e.Headlines)), cell(top)))
	}

	return strings.Join(AlignTable(rows), "\n") + "\n"
}

// cell keeps pipes inside a value from splitting the column.
func cell(s string) string {
	return strings.ReplaceAll(s, "|", "/")
}
