// Package output renders uacore-cli results.
//
// Formatters:
//
//   - table: aligned columns; struct fields tagged `table:"wide"` only
//     appear with --wide, fields tagged `table:"-"` never do
//   - json: indented JSON, identical to the API's data member
//   - yaml: YAML with the JSON field names
//
// Values implementing fmt.Stringer (node ids, durations, channel keys) are
// rendered through String in tables.
package output
