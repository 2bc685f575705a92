package dataset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/a3tai/exam-dataset/internal/fileutil"
)

// maxLineSize bounds one JSONL record.
const maxLineSize = 16 << 20

// ScanJSONL calls fn for every non-blank line of r.
func ScanJSONL(r io.Reader, fn func(line []byte) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	n := 0
	for sc.Scan() {
		n++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
	}
	return sc.Err()
}

// ReadJSONL loads every record of path.
func ReadJSONL(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []Record
	err = ScanJSONL(f, func(line []byte) error {
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

// EncodeJSONL writes one compact JSON object per line with non-ASCII text
// left as is.
func EncodeJSONL[T any](w io.Writer, items []T) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i := range items {
		if err := enc.Encode(items[i]); err != nil {
			return err
		}
	}
	return nil
}

// WriteJSONL replaces path atomically with items.
func WriteJSONL[T any](path string, items []T) error {
	return fileutil.WriteWith(path, 0o644, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		if err := EncodeJSONL(bw, items); err != nil {
			return err
		}
		return bw.Flush()
	})
}
