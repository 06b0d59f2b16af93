package format

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/armis/armis/pkg/types"
)

// Issue is one problem found while validating a dashboard document.
type Issue struct {
	Item    string `json:"item,omitempty"`
	Kind    string `json:"kind"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// Report collects validation issues for one file.
type Report struct {
	FileName string        `json:"file"`
	Issues   []Issue       `json:"issues"`
	Checked  int           `json:"checked"`
	Duration time.Duration `json:"-"`
	start    time.Time
}

var hintTemplates = map[types.ErrorKind]string{
	types.KindConfig:     "Fix the document structure; the server refuses to load it until this is resolved.",
	types.KindValidation: "Add or correct field '%s'; the item is dropped or shown unrendered until it is fixed.",
	types.KindRegistry:   "Use one of the registered command types.",
}

// NewReport starts a report for filename.
func NewReport(filename string) *Report {
	return &Report{FileName: filename, Issues: []Issue{}, start: time.Now()}
}

// Add records err against item (empty for document-level problems).
// A nil err counts as a passed check.
func (r *Report) Add(item string, err error) {
	r.Checked++
	if err == nil {
		return
	}
	is := Issue{Item: item, Kind: "error", Message: err.Error()}
	var te *types.Error
	if errors.As(err, &te) {
		is.Kind = string(te.Kind)
		is.Field = te.Field
		is.Message = te.Message
		if tmpl, ok := hintTemplates[te.Kind]; ok {
			if strings.Contains(tmpl, "%s") {
				is.Hint = fmt.Sprintf(tmpl, te.Field)
			} else {
				is.Hint = tmpl
			}
		}
	}
	r.Issues = append(r.Issues, is)
}

// OK reports whether no issue was recorded.
func (r *Report) OK() bool { return len(r.Issues) == 0 }

// Print writes the issues followed by a summary line.
func (r *Report) Print(w io.Writer) {
	r.Duration = time.Since(r.start)
	for _, is := range r.Issues {
		where := r.FileName
		if is.Item != "" {
			where += ": " + is.Item
		}
		fmt.Fprintf(w, "%s %s\n", ErrorColor.Sprint(is.Kind), InfoColor.Sprint(where))
		fmt.Fprintf(w, "  %s\n", is.Message)
		if is.Hint != "" {
			fmt.Fprintf(w, "  %s %s\n", WarningColor.Sprint("hint:"), is.Hint)
		}
	}
	if r.OK() {
		PrintSuccess(w, "%s is valid (%d checks, %.2fs)", r.FileName, r.Checked, r.Duration.Seconds())
		return
	}
	PrintFailure(w, "%s has %d problem(s) in %d checks", r.FileName, len(r.Issues), r.Checked)
}

// JSON renders the report for machine consumption.
func (r *Report) JSON() string {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error":"Failed to marshal JSON: %s"}`, err.Error())
	}
	return string(data)
}
