package core

import "math"

// MaxDisplayErrors caps the error list returned by Summary.
const MaxDisplayErrors = 10

// FailedRecord is a row that could not be standardized, kept with the
// content that caused the failure.
type FailedRecord struct {
	Raw   RawRecord `json:"raw_data"`
	Line  int       `json:"line,omitempty"`
	Error string    `json:"parse_error"`

	// Fields names the canonical fields that failed validation, if any.
	Fields []string `json:"fields,omitempty"`
}

// ParseResult accumulates the outcome of parsing one file.
// It is created per parse and only changed through the Add methods.
type ParseResult struct {
	Source   Provider
	FileName string
	Encoding string

	Successes []CanonicalRecord
	Failures  []FailedRecord
	Errors    []string

	TotalCount   int
	SuccessCount int
	FailedCount  int

	opts  ParseOptions
	fatal bool
}

// NewParseResult returns an empty result for one file, parsed with the
// default options.
func NewParseResult(source Provider, fileName string) *ParseResult {
	return &ParseResult{Source: source, FileName: fileName, opts: DefaultParseOptions()}
}

// WithOptions sets the options rows of r are standardized with and returns r.
func (r *ParseResult) WithOptions(opts ParseOptions) *ParseResult {
	r.opts = opts.withDefaults()
	return r
}

// Options returns the options rows of r are standardized with.
func (r *ParseResult) Options() ParseOptions { return r.opts }

// AddSuccess records a standardized row.
func (r *ParseResult) AddSuccess(rec CanonicalRecord) {
	r.Successes = append(r.Successes, rec)
	r.TotalCount++
	r.SuccessCount++
}

// AddFailure records a row that failed, with its raw content and reason.
func (r *ParseResult) AddFailure(raw RawRecord, line int, msg string) {
	msg = rowError(line, msg)
	r.Failures = append(r.Failures, FailedRecord{Raw: raw, Line: line, Error: msg})
	r.Errors = append(r.Errors, msg)
	r.TotalCount++
	r.FailedCount++
}

// AddRowError records a row that failed with err. Validation errors from
// Standardize also record which fields failed.
func (r *ParseResult) AddRowError(raw RawRecord, line int, err error) {
	r.AddFailure(raw, line, err.Error())
	r.Failures[len(r.Failures)-1].Fields = FailedFields(err)
}

// AddFileFailure records a failure that stopped the whole file.
func (r *ParseResult) AddFileFailure(msg string) {
	r.fatal = true
	raw := NewRawRecord([]string{"file_name"}, []string{r.FileName})
	r.AddFailure(raw, 0, msg)
}

// HasFatal reports whether parsing stopped at the file level.
func (r *ParseResult) HasFatal() bool { return r.fatal }

// Summary is the display form of a ParseResult.
type Summary struct {
	TotalCount   int      `json:"total_count"`
	SuccessCount int      `json:"success_count"`
	FailedCount  int      `json:"failed_count"`
	SuccessRate  float64  `json:"success_rate"`
	Errors       []string `json:"errors"`
}

// Summary returns the counts, the success percentage and at most
// MaxDisplayErrors error messages.
func (r *ParseResult) Summary() Summary {
	s := Summary{
		TotalCount:   r.TotalCount,
		SuccessCount: r.SuccessCount,
		FailedCount:  r.FailedCount,
		Errors:       []string{},
	}
	if r.TotalCount > 0 {
		rate := float64(r.SuccessCount) / float64(r.TotalCount) * 100
		s.SuccessRate = math.Round(rate*100) / 100
	}
	n := len(r.Errors)
	if n > MaxDisplayErrors {
		n = MaxDisplayErrors
	}
	s.Errors = append(s.Errors, r.Errors[:n]...)
	return s
}
