package list

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v2"
)

const tagName = "header"

func FormatJSON(entry interface{}) (string, error) {
	out, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "cannot format as JSON")
	}

	return string(out), nil
}

func FormatYAML(entry interface{}) (string, error) {
	out, err := yaml.Marshal(entry)
	if err != nil {
		return "", errors.Wrap(err, "cannot format as YAML")
	}

	return string(out), nil
}

// FormatTable renders a slice of structs, one row per element and one column
// per exported field. The header tag renames a column and "-" hides it. Fields
// tagged unit:"bytes" are shown as sizes.
func FormatTable(entries interface{}, caption string) (string, error) {
	if k := reflect.TypeOf(entries).Kind(); k != reflect.Slice && k != reflect.Array {
		return "", errors.Errorf("cannot format %T as a table", entries)
	}

	cols := columns(reflect.TypeOf(entries).Elem())
	if len(cols) == 0 {
		return "", errors.Errorf("%T has no columns", entries)
	}

	var builder strings.Builder
	table := tablewriter.NewWriter(&builder)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	table.SetHeader(getHeaderNames(cols))
	table.AppendBulk(getRows(entries, cols))
	if caption != "" {
		table.SetCaption(true, caption)
	}
	table.Render()

	return builder.String(), nil
}

type column struct {
	index int
	name  string
	bytes bool
}

func columns(t reflect.Type) []column {
	if t.Kind() != reflect.Struct {
		return nil
	}

	var cols []column
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.PkgPath != "" {
			continue
		}

		name := field.Tag.Get(tagName)
		switch name {
		case "-":
			continue
		case "":
			name = field.Name
		}
		cols = append(cols, column{index: i, name: name, bytes: field.Tag.Get("unit") == "bytes"})
	}

	return cols
}

func getHeaderNames(cols []column) []string {
	names := make([]string, 0, len(cols))
	for _, c := range cols {
		names = append(names, c.name)
	}
	return names
}

func getRows(e interface{}, cols []column) [][]string {
	v := reflect.ValueOf(e)

	rows := make([][]string, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		entry := v.Index(i)

		row := make([]string, 0, len(cols))
		for _, c := range cols {
			val := entry.Field(c.index)
			if c.bytes {
				row = append(row, formatSize(cast.ToInt64(val.Interface())))
				continue
			}
			row = append(row, toString(val))
		}

		rows = append(rows, row)
	}

	return rows
}

// formatSize keeps the exact count and adds a binary unit from 1 KiB on.
func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}

	div, exp := int64(unit), 0
	for m := n / unit; m >= unit && exp < 4; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%d (%.1f %ciB)", n, float64(n)/float64(div), "KMGTP"[exp])
}

func toString(val reflect.Value) string {
	switch val.Kind() {
	case reflect.Ptr, reflect.Interface:
		// nullable alert fields
		if val.IsNil() {
			return ""
		}
		return toString(val.Elem())
	case reflect.Slice:
		if val.Type().Elem().Kind() == reflect.Uint8 {
			return formatSize(int64(val.Len()))
		}

		elems := make([]string, 0, val.Len())
		for i := 0; i < val.Len(); i++ {
			elems = append(elems, toString(val.Index(i)))
		}
		return strings.Join(elems, ", ")
	}

	if s, ok := val.Interface().(fmt.Stringer); ok {
		return s.String()
	}
	if val.Kind() == reflect.Struct {
		return fmt.Sprintf("%v", val.Interface())
	}
	return cast.ToString(val.Interface())
}
