package source

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/kailas-cloud/partsearch/internal/domain"
	"github.com/kailas-cloud/partsearch/internal/domain/product"
)

// ErrUnsupportedFormat is returned by Open for unknown file extensions.
var ErrUnsupportedFormat = errors.New("unsupported source format")

// Rows yields products in file order. Rows that fail validation yield an
// error wrapping domain.ErrInvalidProduct and iteration continues;
// any other error ends the sequence.
type Rows = iter.Seq2[product.Product, error]

// JSON streams a top-level array of records (raw_data.json).
func JSON(r io.Reader) Rows {
	return func(yield func(product.Product, error) bool) {
		dec := json.NewDecoder(r)
		tok, err := dec.Token()
		if err != nil {
			yield(product.Product{}, fmt.Errorf("read json: %w", err))
			return
		}
		if d, ok := tok.(json.Delim); !ok || d != '[' {
			yield(product.Product{}, fmt.Errorf("read json: expected array, got %v", tok))
			return
		}

		for i := 0; dec.More(); i++ {
			var rec Record
			if err := dec.Decode(&rec); err != nil {
				var syntaxErr *json.SyntaxError
				if !errors.As(err, &syntaxErr) && !errors.Is(err, io.ErrUnexpectedEOF) {
					if !yield(product.Product{}, fmt.Errorf("record %d: %w: %w", i, domain.ErrInvalidProduct, err)) {
						return
					}
					continue
				}
				yield(product.Product{}, fmt.Errorf("record %d: %w", i, err))
				return
			}
			p, err := rec.Product()
			if err != nil {
				err = fmt.Errorf("record %d: %w", i, err)
			}
			if !yield(p, err) {
				return
			}
		}
	}
}

// csvColumns are the scraper's CSV headers (complete_data.csv).
var csvColumns = []string{
	"application", "sub_application", "category", "subcategory",
	"description", "applications", "image",
}

// CSV reads a header row followed by records. Column order is taken from the header.
func CSV(r io.Reader) Rows {
	return func(yield func(product.Product, error) bool) {
		cr := csv.NewReader(r)
		cr.FieldsPerRecord = -1

		header, err := cr.Read()
		if err != nil {
			yield(product.Product{}, fmt.Errorf("read csv header: %w", err))
			return
		}
		idx := make(map[string]int, len(header))
		for i, h := range header {
			idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
		}
		for _, col := range csvColumns {
			if _, ok := idx[col]; !ok && col != "image" && col != "applications" {
				yield(product.Product{}, fmt.Errorf("read csv: missing column %q", col))
				return
			}
		}

		for line := 2; ; line++ {
			row, err := cr.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(product.Product{}, fmt.Errorf("read csv line %d: %w", line, err))
				return
			}

			get := func(col string) string {
				if i, ok := idx[col]; ok && i < len(row) {
					return row[i]
				}
				return ""
			}

			apps, err := parseList(get("applications"))
			if err != nil {
				if !yield(product.Product{}, fmt.Errorf("line %d: %w: %w", line, domain.ErrInvalidProduct, err)) {
					return
				}
				continue
			}

			image := get("image")
			if strings.EqualFold(image, "nan") {
				image = ""
			}
			rec := Record{
				Application:    get("application"),
				SubApplication: get("sub_application"),
				Category:       get("category"),
				Subcategory:    get("subcategory"),
				Description:    get("description"),
				Applications:   apps,
				Image:          image,
			}
			p, err := rec.Product()
			if err != nil {
				err = fmt.Errorf("line %d: %w", line, err)
			}
			if !yield(p, err) {
				return
			}
		}
	}
}

// Open picks a reader by file extension (.json or .csv).
// The returned file must be closed after iteration.
func Open(path string) (Rows, io.Closer, error) {
	var read func(io.Reader) Rows
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		read = JSON
	case ".csv":
		read = CSV
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, path)
	}

	f, err := os.Open(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, nil, fmt.Errorf("open source: %w", err)
	}
	return read(f), f, nil
}
