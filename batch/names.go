package batch

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned by ReadNames for unknown file types.
var ErrUnsupportedFormat = errors.New("batch: unsupported names file format")

// SanitizeName replaces every character outside [A-Za-z0-9] with '_'.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// FileName is the output file name for one recipient:
// "<displayName>_<sanitized name>.pdf".
func FileName(displayName, name string) string {
	return pathSegment(displayName) + "_" + SanitizeName(name) + ".pdf"
}

// pathSegment keeps a display name from introducing directories.
func pathSegment(s string) string {
	s = strings.NewReplacer("/", "_", `\`, "_").Replace(s)
	if s == "." || s == ".." {
		return strings.Repeat("_", len(s))
	}
	return s
}

// fileNamer hands out file names that are unique within one run by adding
// _2, _3, ... before the extension.
type fileNamer struct {
	used map[string]bool
}

func newFileNamer() *fileNamer { return &fileNamer{used: map[string]bool{}} }

func (n *fileNamer) next(name string) string {
	key := strings.ToLower(name)
	if !n.used[key] {
		n.used[key] = true
		return name
	}
	base := strings.TrimSuffix(name, ".pdf")
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s_%d.pdf", base, i)
		if k := strings.ToLower(candidate); !n.used[k] {
			n.used[k] = true
			return candidate
		}
	}
}

// ReadNames loads recipient names from a .txt, .csv or .json file.
func ReadNames(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseNames(f, filepath.Ext(path))
}

// ParseNames reads names in the format named by ext:
//
//	.txt   one name per line, blank lines ignored
//	.csv   the "name" column when the header has one, else the first column
//	.json  an array of objects with a "name" or "Name" string
func ParseNames(r io.Reader, ext string) ([]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "txt":
		return textNames(data), nil
	case "csv":
		return csvNames(data)
	case "json":
		return jsonNames(data)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}

func textNames(data []byte) []string {
	var names []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return names
}

func csvNames(data []byte) ([]string, error) {
	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	col := 0
	for i, h := range rows[0] {
		if strings.ToLower(strings.TrimSpace(h)) == "name" {
			col = i
			break
		}
	}
	var names []string
	for _, row := range rows[1:] {
		if col >= len(row) {
			continue
		}
		if v := strings.TrimSpace(row[col]); v != "" {
			names = append(names, v)
		}
	}
	return names, nil
}

func jsonNames(data []byte) ([]string, error) {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse json: expected an array of objects: %w", err)
	}
	var names []string
	for _, item := range items {
		for _, key := range []string{"name", "Name"} {
			var s string
			if raw, ok := item[key]; ok && json.Unmarshal(raw, &s) == nil && s != "" {
				names = append(names, s)
				break
			}
		}
	}
	return names, nil
}
