package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/boddenberg/pm-portal-bfa/internal/domain"

	"github.com/xuri/excelize/v2"
	"golang.org/x/crypto/blake2b"
)

// Sheet is the rectangular content of the first worksheet of an export.
// Rows[0] is the header row.
type Sheet struct {
	Name string
	Rows [][]string
}

var zipMagic = []byte("PK\x03\x04")

// ReadWorkbook extracts the first sheet of an uploaded booking export.
// Both .xlsx workbooks and delimited text (.csv) are accepted. Files that
// are empty, have no sheet, or fewer than two rows (header + one line) fail
// as a whole with *domain.ErrImport.
func ReadWorkbook(fileName string, content []byte) (*Sheet, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, &domain.ErrImport{Reason: "empty workbook"}
	}

	var (
		sheet *Sheet
		err   error
	)
	if isSpreadsheet(fileName, content) {
		sheet, err = readXLSX(content)
	} else {
		sheet, err = readCSV(content)
	}
	if err != nil {
		return nil, err
	}

	if len(sheet.Rows) < 2 {
		return nil, &domain.ErrImport{Reason: "workbook needs a header and at least one row"}
	}
	return sheet, nil
}

func isSpreadsheet(fileName string, content []byte) bool {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xlsx", ".xlsm":
		return true
	case ".csv", ".txt":
		return false
	}
	return bytes.HasPrefix(content, zipMagic)
}

func readXLSX(content []byte) (*Sheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, &domain.ErrImport{Reason: "unreadable workbook", Err: err}
	}
	defer f.Close()

	names := f.GetSheetList()
	if len(names) == 0 {
		return nil, &domain.ErrImport{Reason: "workbook has no sheets"}
	}

	// Raw values: dates arrive as serials and numbers without grouping
	// separators, whatever number format the cell carries.
	rows, err := f.GetRows(names[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, &domain.ErrImport{Reason: "unreadable sheet " + names[0], Err: err}
	}
	rows = trimTrailingEmpty(rows)
	padToHeader(rows)
	return &Sheet{Name: names[0], Rows: rows}, nil
}

// padToHeader restores the trailing empty cells excelize drops, so a row is
// as wide as the header it belongs to.
func padToHeader(rows [][]string) {
	if len(rows) == 0 {
		return
	}
	width := len(rows[0])
	for i := 1; i < len(rows); i++ {
		if n := len(rows[i]); n > 0 && n < width {
			rows[i] = append(rows[i], make([]string, width-n)...)
		}
	}
}

func readCSV(content []byte) (*Sheet, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))

	r := csv.NewReader(bytes.NewReader(content))
	r.Comma = sniffDelimiter(content)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &domain.ErrImport{Reason: "unreadable csv", Err: err}
		}
		rows = append(rows, record)
	}
	return &Sheet{Name: "csv", Rows: trimTrailingEmpty(rows)}, nil
}

// sniffDelimiter picks ';' or tab over ',' when the header line uses it more.
func sniffDelimiter(content []byte) rune {
	line := content
	if i := bytes.IndexByte(content, '\n'); i >= 0 {
		line = content[:i]
	}
	best, count := ',', bytes.Count(line, []byte(","))
	for _, d := range []rune{';', '\t'} {
		if n := bytes.Count(line, []byte(string(d))); n > count {
			best, count = d, n
		}
	}
	return best
}

func trimTrailingEmpty(rows [][]string) [][]string {
	for len(rows) > 0 && isBlankRow(rows[len(rows)-1]) {
		rows = rows[:len(rows)-1]
	}
	return rows
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Fingerprint returns a stable hex digest of an uploaded file.
func Fingerprint(content []byte) string {
	sum := blake2b.Sum256(content)
	return hex.EncodeToString(sum[:])
}
