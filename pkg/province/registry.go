package province

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Key is the canonical name of one of Spain's 52 provinces.
type Key string

// Province is one entry of the geographic reference set.
type Province struct {
	Code string `json:"code" yaml:"code"`
	Key  Key    `json:"key" yaml:"key"`
}

// Registry is the fixed reference set every province label must resolve to.
// It is immutable once built and safe for concurrent use.
type Registry struct {
	byKey  map[Key]Province
	byCode map[string]Province
	folded map[string]Key
	keys   []Key
}

//go:embed provinces.csv
var defaultCSV []byte

var defaultRegistry = sync.OnceValue(func() *Registry {
	r, err := readRegistry(bytes.NewReader(defaultCSV), LoadOptions{})
	if err != nil {
		panic(fmt.Sprintf("embedded province list: %v", err))
	}
	return r
})

// Default returns the embedded INE reference set (52 provinces).
func Default() *Registry {
	return defaultRegistry()
}

// NewRegistry builds a registry from explicit entries. Keys are NFC-composed;
// empty or duplicate keys are rejected.
func NewRegistry(provinces []Province) (*Registry, error) {
	r := &Registry{
		byKey:  make(map[Key]Province, len(provinces)),
		byCode: make(map[string]Province, len(provinces)),
		folded: make(map[string]Key, len(provinces)*2),
	}
	for _, p := range provinces {
		p.Key = Key(norm.NFC.String(strings.TrimSpace(string(p.Key))))
		p.Code = strings.TrimSpace(p.Code)
		if p.Key == "" {
			return nil, fmt.Errorf("empty province key (code %q)", p.Code)
		}
		if _, dup := r.byKey[p.Key]; dup {
			return nil, fmt.Errorf("duplicate province key %q", p.Key)
		}
		r.byKey[p.Key] = p
		if p.Code != "" {
			r.byCode[p.Code] = p
		}
		r.keys = append(r.keys, p.Key)

		r.folded[fold(string(p.Key))] = p.Key
		for _, part := range strings.Split(string(p.Key), "/") {
			if f := fold(part); f != "" {
				if _, taken := r.folded[f]; !taken {
					r.folded[f] = p.Key
				}
			}
		}
	}
	sort.Slice(r.keys, func(i, j int) bool { return r.keys[i] < r.keys[j] })
	return r, nil
}

// LoadOptions describes the layout of a reference CSV file.
type LoadOptions struct {
	Delimiter  string // default ";"
	Encoding   string // default utf-8
	KeyColumn  string // default "name"
	CodeColumn string // default "code"; optional in the file
}

// LoadRegistry reads a reference set from a delimited file with a header row.
func LoadRegistry(path string, opts LoadOptions) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open province list: %w", err)
	}
	defer f.Close()

	r, err := readRegistry(f, opts)
	if err != nil {
		return nil, fmt.Errorf("province list %s: %w", path, err)
	}
	return r, nil
}

func readRegistry(src io.Reader, opts LoadOptions) (*Registry, error) {
	if opts.Delimiter == "" {
		opts.Delimiter = ";"
	}
	if opts.KeyColumn == "" {
		opts.KeyColumn = "name"
	}
	if opts.CodeColumn == "" {
		opts.CodeColumn = "code"
	}

	reader := src
	if enc := opts.Encoding; enc != "" && !isUTF8(enc) {
		e, err := htmlindex.Get(enc)
		if err != nil {
			return nil, fmt.Errorf("unsupported encoding %q: %w", enc, err)
		}
		reader = transform.NewReader(src, e.NewDecoder())
	}

	r := csv.NewReader(reader)
	r.Comma = []rune(opts.Delimiter)[0]
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	keyIdx, codeIdx := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) {
		case opts.KeyColumn:
			keyIdx = i
		case opts.CodeColumn:
			codeIdx = i
		}
	}
	if keyIdx < 0 {
		return nil, fmt.Errorf("key column %q not found in header %v", opts.KeyColumn, header)
	}

	var provinces []Province
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if keyIdx >= len(record) || strings.TrimSpace(record[keyIdx]) == "" {
			continue
		}
		p := Province{Key: Key(record[keyIdx])}
		if codeIdx >= 0 && codeIdx < len(record) {
			p.Code = record[codeIdx]
		}
		provinces = append(provinces, p)
	}
	return NewRegistry(provinces)
}

// Contains reports whether k is a reference key.
func (r *Registry) Contains(k Key) bool {
	_, ok := r.byKey[k]
	return ok
}

// Get returns the reference entry for k.
func (r *Registry) Get(k Key) (Province, bool) {
	p, ok := r.byKey[k]
	return p, ok
}

// ByCode returns the province with the given official code (e.g. "46").
func (r *Registry) ByCode(code string) (Province, bool) {
	p, ok := r.byCode[strings.TrimSpace(code)]
	return p, ok
}

// Keys returns all reference keys in sorted order.
func (r *Registry) Keys() []Key {
	return append([]Key(nil), r.keys...)
}

// Len returns the size of the reference set.
func (r *Registry) Len() int {
	return len(r.keys)
}

// suggest finds a reference key equal to label up to case and accents.
// Used only to enrich error messages, never to resolve a label.
func (r *Registry) suggest(label string) (Key, bool) {
	k, ok := r.folded[fold(label)]
	return k, ok
}

func isUTF8(enc string) bool {
	e := strings.ToLower(strings.ReplaceAll(enc, "-", ""))
	return e == "utf8" || e == ""
}
