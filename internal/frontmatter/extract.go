// internal/frontmatter/extract.go
package frontmatter

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/adrg/frontmatter"

	"github.com/solatis/mdcollate/internal/types"
)

/*
 * Frontmatter block extraction.
 *
 * Recognized leading blocks:
 *   ---  YAML, closed by "---" or "..."
 *   +++  TOML, closed by "+++"
 *   {    JSON object, closed by a line holding only "}"
 *   ;;;  JSON object, closed by ";;;"
 *
 * Fence detection is delegated to adrg/frontmatter; its unmarshal hook only
 * captures the raw payload so decoding stays in Parse. A UTF-8 BOM is skipped.
 * Fence lines may carry surrounding whitespace and CRLF endings, and blank
 * lines before the opening fence are ignored.
 */

// Format names a frontmatter payload encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// Block is a raw frontmatter payload and the document body following it.
type Block struct {
	Format  Format
	Payload []byte
	Body    []byte
}

var bom = []byte{0xEF, 0xBB, 0xBF}

var (
	fencedFormats = []*frontmatter.Format{
		frontmatter.NewFormat("---", "---", capture(FormatYAML)),
		frontmatter.NewFormat("+++", "+++", capture(FormatTOML)),
		{Start: "{", End: "}", Unmarshal: capture(FormatJSON), UnmarshalDelims: true},
		frontmatter.NewFormat(";;;", ";;;", capture(FormatJSON)),
	}

	// YAML may also end at the "..." document end marker. Tried only when no
	// "---" closer exists.
	yamlDocumentEnd = frontmatter.NewFormat("---", "...", capture(FormatYAML))
)

// capture records the raw payload into the *Block passed to the parser.
func capture(format Format) frontmatter.UnmarshalFunc {
	return func(data []byte, v any) error {
		b, ok := v.(*Block)
		if !ok {
			return fmt.Errorf("capture target is %T, want *Block", v)
		}
		b.Format = format
		b.Payload = append([]byte(nil), data...)
		return nil
	}
}

// Extract splits content into frontmatter block and body.
// Returns types.ErrNoFrontmatter when content has no leading block, including
// an opening fence that is never closed.
func Extract(content []byte) (Block, error) {
	content = bytes.TrimPrefix(content, bom)

	b, err := extractWith(content, fencedFormats...)
	if errors.Is(err, frontmatter.ErrNotFound) {
		b, err = extractWith(content, yamlDocumentEnd)
	}
	if errors.Is(err, frontmatter.ErrNotFound) {
		return Block{}, types.ErrNoFrontmatter
	}
	if err != nil {
		return Block{}, fmt.Errorf("extract frontmatter: %w", err)
	}
	return b, nil
}

func extractWith(content []byte, formats ...*frontmatter.Format) (Block, error) {
	var b Block
	body, err := frontmatter.MustParse(bytes.NewReader(content), &b, formats...)
	if err != nil {
		return Block{}, err
	}
	b.Body = body
	return b, nil
}
