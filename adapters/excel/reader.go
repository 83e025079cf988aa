package excel

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Column aliases accepted for each observation field. The first header
// matching any alias wins.
var columnAliases = map[string][]string{
	"path":      {"path", "signal_path", "metric"},
	"value":     {"value", "val", "observation"},
	"kind":      {"kind", "payload_kind", "type"},
	"source_id": {"source_id", "source", "producer"},
	"model_id":  {"model_id", "model"},
	"regime_id": {"regime_id", "regime"},
	"ci_lower":  {"ci_lower", "lower", "confidence_lower"},
	"ci_upper":  {"ci_upper", "upper", "confidence_upper"},
}

// FeedReader handles reading observation feeds from Excel and CSV files
type FeedReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
}

// NewFeedReader creates a new feed reader that handles both Excel and CSV files
func NewFeedReader(filePath string) *FeedReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	return &FeedReader{filePath: filePath, fileType: fileType}
}

// ReadSheet reads the raw feed into headers and string rows
func (r *FeedReader) ReadSheet() (*SheetData, error) {
	log.Printf("[FeedReader] Starting to read %s file: %s", r.fileType, r.filePath)

	// Check if file exists
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath)
	}

	switch r.fileType {
	case "csv":
		return r.readCSVData()
	case "xlsx":
		return r.readExcelData()
	default:
		return nil, fmt.Errorf("unsupported file type: %s", r.fileType)
	}
}

// readExcelData reads Excel data from Sheet1 into structured format
func (r *FeedReader) readExcelData() (*SheetData, error) {
	startTime := time.Now()
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()
	fileOpenTime := time.Since(startTime)
	log.Printf("[FeedReader] Excel file opened in %.2fms", float64(fileOpenTime.Nanoseconds())/1e6)

	// Always use Sheet1
	readStart := time.Now()
	rows, err := f.GetRows("Sheet1")
	if err != nil {
		return nil, fmt.Errorf("failed to read Sheet1: %w", err)
	}
	readTime := time.Since(readStart)
	log.Printf("[FeedReader] Sheet1 read in %.2fms (%d rows)", float64(readTime.Nanoseconds())/1e6, len(rows))

	if len(rows) < 2 {
		return nil, fmt.Errorf("Excel file must have at least a header row and one data row")
	}

	return r.processRows(rows)
}

// readCSVData reads CSV data into structured format
func (r *FeedReader) readCSVData() (*SheetData, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	readStart := time.Now()
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	readTime := time.Since(readStart)
	log.Printf("[FeedReader] CSV file read in %.2fms (%d rows)", float64(readTime.Nanoseconds())/1e6, len(rows))

	if len(rows) < 2 {
		return nil, fmt.Errorf("CSV file must have at least a header row and one data row")
	}

	return r.processRows(rows)
}

// processRows converts raw string rows into SheetData format
func (r *FeedReader) processRows(rows [][]string) (*SheetData, error) {
	// Extract headers from first row
	headerRow := rows[0]
	headers := make([]string, len(headerRow))
	for i, header := range headerRow {
		headers[i] = strings.TrimSpace(header)
	}

	// Extract data rows
	var dataRows []RawRowData
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		rowData := make(RawRowData)

		for j, cell := range row {
			if j < len(headers) {
				rowData[headers[j]] = strings.TrimSpace(cell)
			}
		}

		dataRows = append(dataRows, rowData)
	}

	log.Printf("[FeedReader] %s file processed (%d columns, %d rows)",
		strings.ToUpper(r.fileType), len(headers), len(dataRows))

	return &SheetData{
		Headers: headers,
		Rows:    dataRows,
	}, nil
}

// ParseObservations maps sheet rows onto observation rows using the
// column aliases. Fully empty rows are skipped; a bad numeric cell
// fails the whole parse so a partial feed is never admitted.
func ParseObservations(data *SheetData) ([]ObservationRow, error) {
	columns, err := resolveColumns(data.Headers)
	if err != nil {
		return nil, err
	}

	observations := make([]ObservationRow, 0, len(data.Rows))
	for i, row := range data.Rows {
		rowNum := i + 1
		if rowIsEmpty(row) {
			continue
		}

		obs := ObservationRow{
			Row:      rowNum,
			Path:     row[columns["path"]],
			Kind:     row[columns["kind"]],
			SourceID: row[columns["source_id"]],
			ModelID:  row[columns["model_id"]],
			RegimeID: row[columns["regime_id"]],
		}

		if obs.Path == "" {
			return nil, fmt.Errorf("row %d: missing path", rowNum)
		}
		if obs.SourceID == "" {
			return nil, fmt.Errorf("row %d: missing source_id", rowNum)
		}

		obs.Value, err = parseFloatCell(row, columns["value"], rowNum, "value", true)
		if err != nil {
			return nil, err
		}
		obs.Lower, err = parseFloatCell(row, columns["ci_lower"], rowNum, "ci_lower", false)
		if err != nil {
			return nil, err
		}
		obs.Upper, err = parseFloatCell(row, columns["ci_upper"], rowNum, "ci_upper", false)
		if err != nil {
			return nil, err
		}

		observations = append(observations, obs)
	}

	log.Printf("[FeedReader] Parsed %d observations from %d rows", len(observations), len(data.Rows))
	return observations, nil
}

// resolveColumns maps each observation field to the header that carries
// it. Required fields with no matching header fail the parse.
func resolveColumns(headers []string) (map[string]string, error) {
	normalized := make(map[string]string, len(headers))
	for _, header := range headers {
		normalized[strings.ToLower(header)] = header
	}

	columns := make(map[string]string, len(columnAliases))
	var missing []string
	for field, aliases := range columnAliases {
		for _, alias := range aliases {
			if header, ok := normalized[alias]; ok {
				columns[field] = header
				break
			}
		}
		if _, ok := columns[field]; !ok {
			switch field {
			case "path", "value", "source_id":
				missing = append(missing, field)
			}
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return columns, nil
}

func parseFloatCell(row RawRowData, column string, rowNum int, field string, required bool) (float64, error) {
	raw := row[column]
	if raw == "" {
		if required {
			return 0, fmt.Errorf("row %d: missing %s", rowNum, field)
		}
		return 0, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("row %d: invalid %s %q", rowNum, field, raw)
	}
	return value, nil
}

func rowIsEmpty(row RawRowData) bool {
	for _, cell := range row {
		if cell != "" {
			return false
		}
	}
	return true
}
