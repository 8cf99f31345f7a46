package output

import (
	"encoding/json"
	"io"
)

// JSONFormatter prints the data member of an API response as indented JSON,
// one document per call, so output can be piped into jq.
type JSONFormatter struct{}

// Format writes data. Node ids such as ns=2;s=<Boiler> are printed as
// typed rather than with < escapes.
func (f *JSONFormatter) Format(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(data)
}
