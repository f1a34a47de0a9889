// internal/frontmatter/parse.go
package frontmatter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/solatis/mdcollate/internal/types"
)

// Parse decodes a block's payload into a plain tree.
//
// Output uses map[string]any, []any, string, bool, nil and the decoder's number
// types (int / int64 / uint64 / float64). Timestamps and TOML local dates become
// strings (RFC 3339 for full timestamps). An empty payload is an empty object.
func Parse(b Block) (map[string]any, error) {
	if len(bytes.TrimSpace(b.Payload)) == 0 {
		return map[string]any{}, nil
	}

	var raw any
	var err error
	switch b.Format {
	case FormatYAML:
		err = yaml.Unmarshal(b.Payload, &raw)
	case FormatTOML:
		var m map[string]any
		err = toml.Unmarshal(b.Payload, &m)
		raw = m
	case FormatJSON:
		err = json.Unmarshal(b.Payload, &raw)
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrUnsupportedFormat, b.Format)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s frontmatter: %w", b.Format, err)
	}

	if raw == nil {
		return map[string]any{}, nil
	}
	obj, ok := normalize(raw).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s frontmatter must be a mapping, got %T",
			types.ErrUnsupportedFormat, b.Format, raw)
	}
	return obj, nil
}

// ParseDocument extracts and parses content in one step.
func ParseDocument(content []byte) (map[string]any, []byte, error) {
	block, err := Extract(content)
	if err != nil {
		return nil, nil, err
	}
	data, err := Parse(block)
	if err != nil {
		return nil, nil, err
	}
	return data, block.Body, nil
}

// DecodeFile reads a whole unfenced JSON, YAML or TOML file, such as a schema.
// The format follows the extension; anything else is read as YAML.
func DecodeFile(path string) (map[string]any, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	format := FormatYAML
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		format = FormatJSON
	case ".toml":
		format = FormatTOML
	}

	data, err := Parse(Block{Format: format, Payload: content})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return data, nil
}

func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = normalize(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[fmt.Sprint(k)] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = normalize(e)
		}
		return out
	case time.Time:
		return val.Format(time.RFC3339)
	case toml.LocalDate:
		return val.String()
	case toml.LocalDateTime:
		return val.String()
	case toml.LocalTime:
		return val.String()
	default:
		return v
	}
}
