package excel

// RawRowData represents a row of raw sheet data as string key-value pairs
type RawRowData map[string]string

// SheetData represents the complete parsed dataset
type SheetData struct {
	Headers []string     // Column headers
	Rows    []RawRowData // Data rows
}

// ObservationRow is one parsed observation ready for admission.
// Missing confidence columns leave the interval at [0,0], which the
// registry records as a dead signal.
type ObservationRow struct {
	Row      int // 1-based data row number for error reporting
	Path     string
	Value    float64
	Kind     string
	SourceID string
	ModelID  string
	RegimeID string
	Lower    float64
	Upper    float64
}
