package api

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/mdcollate/internal/core/db"
	"github.com/solatis/mdcollate/internal/frontmatter"
	"github.com/solatis/mdcollate/internal/pipeline"
	"github.com/solatis/mdcollate/internal/types"
)

// NewAggregateRequest builds an Aggregate request from a schema and parsed
// documents.
func NewAggregateRequest(schemaTree map[string]any, docs []types.Document) (*structpb.Struct, error) {
	list := make([]any, len(docs))
	for i, d := range docs {
		list[i] = map[string]any{"path": d.Path, "data": d.Data}
	}
	plain, err := toPlain(map[string]any{"schema": schemaTree, "documents": list})
	if err != nil {
		return nil, err
	}
	return structpb.NewStruct(plain.(map[string]any))
}

// decodeAggregateRequest reads schema and documents. A document carries either
// parsed "data" or raw "content" with a frontmatter block.
func decodeAggregateRequest(req *structpb.Struct) (map[string]any, []types.Document, error) {
	m := req.AsMap()

	schemaTree, ok := m["schema"].(map[string]any)
	if !ok {
		return nil, nil, fmt.Errorf("schema must be an object")
	}

	rawDocs, ok := m["documents"].([]any)
	if !ok && m["documents"] != nil {
		return nil, nil, fmt.Errorf("documents must be a list")
	}

	docs := make([]types.Document, 0, len(rawDocs))
	for i, raw := range rawDocs {
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, nil, fmt.Errorf("documents[%d] must be an object", i)
		}
		doc := types.Document{Path: fmt.Sprintf("documents[%d]", i)}
		if p, ok := obj["path"].(string); ok && p != "" {
			doc.Path = p
		}

		switch {
		case obj["data"] != nil:
			data, ok := obj["data"].(map[string]any)
			if !ok {
				return nil, nil, fmt.Errorf("%s: data must be an object", doc.Path)
			}
			doc.Data = data
		case obj["content"] != nil:
			content, ok := obj["content"].(string)
			if !ok {
				return nil, nil, fmt.Errorf("%s: content must be a string", doc.Path)
			}
			data, body, err := frontmatter.ParseDocument([]byte(content))
			if err != nil {
				return nil, nil, fmt.Errorf("%s: %w", doc.Path, err)
			}
			doc.Data, doc.Body = data, string(body)
		default:
			return nil, nil, fmt.Errorf("%s: data or content required", doc.Path)
		}
		docs = append(docs, doc)
	}
	return schemaTree, docs, nil
}

func encodeResult(res *pipeline.Result) (*structpb.Struct, error) {
	order := []any{}
	if res.Order != nil {
		for _, k := range res.Order.OrderedDirectives {
			order = append(order, string(k))
		}
	}

	outputs, err := toPlain(res.Outputs)
	if err != nil {
		return nil, fmt.Errorf("encode outputs: %w", err)
	}

	return structpb.NewStruct(map[string]any{
		"run_id":    string(res.RunID),
		"mode":      string(res.Mode),
		"documents": res.Documents,
		"order":     order,
		"outputs":   outputs,
		"warnings":  stringList(res.Warnings),
	})
}

func encodeRun(run *db.Run) (*structpb.Struct, error) {
	var result any
	if err := json.Unmarshal(run.Result, &result); err != nil {
		return nil, fmt.Errorf("decode stored run: %w", err)
	}
	return structpb.NewStruct(map[string]any{
		"run_id":     string(run.RunID),
		"mode":       string(run.Mode),
		"documents":  run.Documents,
		"outputs":    run.Outputs,
		"warnings":   run.Warnings,
		"created_at": run.CreatedAt.Format(time.RFC3339Nano),
		"result":     result,
	})
}

// toPlain converts v to the JSON value shapes structpb accepts.
func toPlain(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func stringList(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
