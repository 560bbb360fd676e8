package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

// PayloadKind classifies a raw payload by its leading bytes. The declared
// content type is not trusted; the upstream service labels CSV exports as
// HTML often enough that sniffing is the only reliable signal.
type PayloadKind int

const (
	KindUnknown PayloadKind = iota
	KindDelimited
	KindSpreadsheet
	KindJSON
)

func (k PayloadKind) String() string {
	switch k {
	case KindDelimited:
		return "delimited"
	case KindSpreadsheet:
		return "spreadsheet"
	case KindJSON:
		return "json"
	}
	return "unknown"
}

// Resolver errors.
var (
	// ErrUnparseable is returned when every parser attempt has been exhausted.
	ErrUnparseable = errors.New("payload not parseable as spreadsheet or delimited text")

	// ErrUnexpectedEnvelope is returned for JSON payloads. The fetcher
	// dereferences export envelopes before this stage, so JSON here means
	// the upstream answered with something other than data.
	ErrUnexpectedEnvelope = errors.New("payload is a JSON document, not tabular data")
)

// xlsx files are zip archives.
var zipMagic = []byte{0x50, 0x4b, 0x03, 0x04}

// Sniff classifies a payload by its leading bytes.
func Sniff(data []byte) PayloadKind {
	if len(data) == 0 {
		return KindUnknown
	}
	if bytes.HasPrefix(data, zipMagic) {
		return KindSpreadsheet
	}
	trimmed := bytes.TrimLeft(data, " \t\r\n\uFEFF")
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return KindJSON
	}
	return KindDelimited
}

// Resolve turns a raw payload into a Frame. Spreadsheets are read through
// excelize; everything else goes through the delimited-text fallback chain:
// UTF-8 comma, then tab, then whitespace splitting, with a Latin-1 re-decode
// applied first when the bytes are not valid UTF-8.
func Resolve(data []byte) (*Frame, error) {
	switch Sniff(data) {
	case KindSpreadsheet:
		return resolveSpreadsheet(data)
	case KindJSON:
		return nil, ErrUnexpectedEnvelope
	case KindUnknown:
		return nil, ErrUnparseable
	}
	return resolveDelimited(data)
}

func resolveSpreadsheet(data []byte) (*Frame, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrUnparseable)
	}
	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: sheet %q is empty", ErrUnparseable, sheets[0])
	}
	return NewFrame(rows[0], rows[1:]), nil
}

func resolveDelimited(data []byte) (*Frame, error) {
	text := strings.TrimPrefix(string(data), "\uFEFF")
	if !utf8.ValidString(text) {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err == nil {
			text = string(decoded)
		}
	}

	// Fixed priority order; first attempt yielding a real multi-column
	// table wins. A clean single-column parse is kept as a fallback so a
	// one-column export still resolves.
	attempts := []func(string) (*Frame, error){
		func(s string) (*Frame, error) { return parseSeparated(s, ',') },
		func(s string) (*Frame, error) { return parseSeparated(s, '\t') },
		parseWhitespace,
	}

	var single *Frame
	for _, attempt := range attempts {
		f, err := attempt(text)
		if err != nil {
			continue
		}
		if f.NumCols() >= 2 {
			return f, nil
		}
		if single == nil {
			single = f
		}
	}
	if single != nil {
		return single, nil
	}
	return nil, ErrUnparseable
}

func parseSeparated(text string, sep rune) (*Frame, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = sep
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrUnparseable
	}
	return NewFrame(records[0], records[1:]), nil
}

func parseWhitespace(text string) (*Frame, error) {
	var records [][]string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		records = append(records, strings.Fields(line))
	}
	if len(records) == 0 {
		return nil, ErrUnparseable
	}
	return NewFrame(records[0], records[1:]), nil
}
