package ingest

import (
	"encoding/csv"
	"errors"
	"regexp"
	"strings"

	"zonewatch/internal/normalize"
)

var reKV = regexp.MustCompile(`(?i)([a-z_][a-z0-9_]*)=([^\s,;]+)`)

// ErrUnrecognized is returned when a line matches none of the formats.
var ErrUnrecognized = errors.New("unrecognized reading line")

// Parser detects the format of each line. A CSV header seen on one line
// applies to the following lines, so one Parser serves one stream.
type Parser struct {
	csv *CSVParser
}

func NewParser() *Parser {
	return &Parser{csv: NewCSVParser()}
}

// ParseLine returns nil fields for blank lines and CSV headers.
func (p *Parser) ParseLine(line string) (*normalize.ReadingFields, error) {
	trim := strings.TrimSpace(line)
	if trim == "" {
		return nil, nil
	}
	if looksLikeJSON(trim) {
		fields, err := ParseJSONBytes([]byte(trim))
		if err != nil {
			return nil, err
		}
		fields.Raw = line
		return fields, nil
	}
	if strings.Contains(trim, "=") {
		fields, err := parseKV(trim)
		if err != nil {
			return nil, err
		}
		fields.Raw = line
		return fields, nil
	}
	if strings.Contains(trim, ",") {
		fields, err := p.csv.Parse(trim)
		if err != nil || fields == nil {
			return nil, err
		}
		fields.Raw = line
		return fields, nil
	}
	return nil, ErrUnrecognized
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func parseKV(line string) (*normalize.ReadingFields, error) {
	matches := reKV.FindAllStringSubmatch(line, -1)
	if len(matches) == 0 {
		return nil, ErrUnrecognized
	}
	fields := &normalize.ReadingFields{}
	for _, m := range matches {
		fields.Assign(m[1], m[2])
	}
	return fields, nil
}

// positional is the column order used when a CSV stream has no header.
var positional = []string{"zone_id", "temperature", "humidity", "air_quality_index", "co2_level", "pressure"}

type CSVParser struct {
	header []string
}

func NewCSVParser() *CSVParser {
	return &CSVParser{}
}

func (p *CSVParser) Parse(line string) (*normalize.ReadingFields, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.TrimLeadingSpace = true
	record, err := r.Read()
	if err != nil {
		return nil, err
	}
	if len(record) == 0 {
		return nil, nil
	}
	if p.header == nil && looksLikeHeader(record) {
		p.header = normalizeHeader(record)
		return nil, nil
	}
	columns := p.header
	if columns == nil {
		columns = positional
	}
	fields := &normalize.ReadingFields{}
	for i, value := range record {
		if i >= len(columns) {
			break
		}
		fields.Assign(columns[i], value)
	}
	return fields, nil
}

func looksLikeHeader(record []string) bool {
	for _, v := range record {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "zone", "zone_id", "zone_code", "temperature", "temp", "humidity", "rh":
			return true
		}
	}
	return false
}

func normalizeHeader(record []string) []string {
	out := make([]string, len(record))
	for i, v := range record {
		out[i] = strings.ToLower(strings.TrimSpace(v))
	}
	return out
}
