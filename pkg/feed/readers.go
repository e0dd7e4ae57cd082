package feed

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mmcdole/gofeed"
)

// Reader decodes one export format into raw records. Readers do not
// normalize; they only get records off disk in whatever shape the
// upstream tool produced.
type Reader interface {
	Name() string
	Read(r io.Reader) ([]RawRecord, error)
}

// ReadFile decodes an export file, picking the reader from the file
// extension. Supported: .json, .jsonl, .ndjson, .csv, .xml, .rss, .atom.
func ReadFile(path string) ([]RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open export %s: %w", path, err)
	}
	defer f.Close()

	var reader Reader
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		reader = JSONReader{}
	case ".jsonl", ".ndjson":
		reader = JSONLinesReader{}
	case ".csv":
		reader = CSVReader{}
	case ".xml", ".rss", ".atom":
		reader = FeedReader{}
	default:
		return nil, fmt.Errorf("unsupported export format %q", filepath.Ext(path))
	}

	records, err := reader.Read(f)
	if err != nil {
		return nil, fmt.Errorf("read %s export %s: %w", reader.Name(), path, err)
	}
	return records, nil
}

// JSONReader decodes a JSON array of raw post objects (API pull dumps).
type JSONReader struct{}

func (JSONReader) Name() string { return "json" }

func (JSONReader) Read(r io.Reader) ([]RawRecord, error) {
	var records []RawRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode json array: %w", err)
	}
	return records, nil
}

// JSONLinesReader decodes newline-delimited JSON, one raw post per line.
type JSONLinesReader struct{}

func (JSONLinesReader) Name() string { return "jsonl" }

func (JSONLinesReader) Read(r io.Reader) ([]RawRecord, error) {
	var records []RawRecord
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec RawRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("decode line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan jsonl: %w", err)
	}
	return records, nil
}

// CSVReader decodes a spreadsheet export. The header row supplies the
// field names; every cell stays a string and alias resolution plus type
// coercion happen in the Normalizer.
type CSVReader struct{}

func (CSVReader) Name() string { return "csv" }

func (CSVReader) Read(r io.Reader) ([]RawRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // spreadsheets pad rows unevenly

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.ToLower(header[i]))
	}

	var records []RawRecord
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}

		rec := make(RawRecord, len(header))
		for i, cell := range row {
			if i >= len(header) || header[i] == "" {
				continue
			}
			if cell = strings.TrimSpace(cell); cell != "" {
				rec[header[i]] = cell
			}
		}
		if len(rec) > 0 {
			records = append(records, rec)
		}
	}
	return records, nil
}

// FeedReader decodes an RSS/Atom export, such as a Nitter feed dump,
// into raw records.
type FeedReader struct{}

func (FeedReader) Name() string { return "feed" }

func (FeedReader) Read(r io.Reader) ([]RawRecord, error) {
	parsed, err := gofeed.NewParser().Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	records := make([]RawRecord, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		rec := RawRecord{
			"id":   entry.GUID,
			"text": entry.Title,
		}
		if rec["id"] == "" {
			rec["id"] = entry.Link
		}
		if entry.Description != "" && len(entry.Description) > len(entry.Title) {
			rec["text"] = entry.Description
		}

		author := feedAuthor(entry)
		if author == "" {
			author = parsed.Title
		}
		rec["author_username"] = author

		if entry.PublishedParsed != nil {
			rec["created_at"] = entry.PublishedParsed.UTC().Format("2006-01-02T15:04:05Z07:00")
		}
		records = append(records, rec)
	}
	return records, nil
}

func feedAuthor(entry *gofeed.Item) string {
	if entry.Author != nil && entry.Author.Name != "" {
		return entry.Author.Name
	}
	if entry.DublinCoreExt != nil && len(entry.DublinCoreExt.Creator) > 0 {
		return entry.DublinCoreExt.Creator[0]
	}
	return ""
}
