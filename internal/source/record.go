// Package source reads the scraper's product exports.
package source

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kailas-cloud/partsearch/internal/domain/product"
)

// Record is one scraped row, keyed the way the scraper writes it.
type Record struct {
	Application    string     `json:"application"`
	SubApplication string     `json:"sub_application"`
	Category       string     `json:"category"`
	Subcategory    string     `json:"subcategory"`
	Description    string     `json:"description"`
	Applications   stringList `json:"applications"`
	Image          string     `json:"image"`
}

// Product maps the scraper's naming onto the catalog model.
// The scraped subcategory is the product name.
func (r *Record) Product() (product.Product, error) {
	return product.New(
		r.Subcategory, r.SubApplication, r.Category, r.Application,
		r.Description, r.Applications, r.Image,
	)
}

// stringList accepts a JSON array or a single string holding a list literal.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("applications: %w", err)
	}
	if s == nil {
		*l = nil
		return nil
	}
	parsed, err := parseList(*s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// parseList parses a JSON array or a Python-style list literal such as
// ['Motors', "Drives, AC"]. A bare string becomes a one-element list.
func parseList(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "[]" || strings.EqualFold(s, "nan") {
		return nil, nil
	}

	var list []string
	if err := json.Unmarshal([]byte(s), &list); err == nil {
		return list, nil
	}

	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return []string{s}, nil
	}
	body := s[1 : len(s)-1]

	var (
		out   []string
		cur   strings.Builder
		quote rune
		esc   bool
	)
	for _, r := range body {
		switch {
		case esc:
			cur.WriteRune(r)
			esc = false
		case quote != 0 && r == '\\':
			esc = true
		case quote != 0 && r == quote:
			out = append(out, cur.String())
			cur.Reset()
			quote = 0
		case quote != 0:
			cur.WriteRune(r)
		case r == '\'' || r == '"':
			quote = r
		case r == ',' || r == ' ' || r == '\t':
		default:
			return nil, fmt.Errorf("applications: unexpected %q outside quotes in %q", r, s)
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("applications: unterminated string in %q", s)
	}
	return out, nil
}
