package tools

import (
	"context"
	"fmt"
	"maps"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/stacklok/envector-mcp/pkg/backend"
	"github.com/stacklok/envector-mcp/pkg/chunker"
	"github.com/stacklok/envector-mcp/pkg/embeddings"
	"github.com/stacklok/envector-mcp/pkg/ingestion"
)

// Tool names.
const (
	ToolGetIndexList            = "get_index_list"
	ToolGetIndexInfo            = "get_index_info"
	ToolCreateIndex             = "create_index"
	ToolInsert                  = "insert"
	ToolSearch                  = "search"
	ToolInsertDocumentsFromPath = "insert_documents_from_path"
	ToolInsertDocumentsFromText = "insert_documents_from_text"
)

const (
	paramIndexName      = "index_name"
	paramDimension      = "dimension"
	paramEvalMode       = "eval_mode"
	paramQueryEncrypted = "query_encrypted"
	paramVectors        = "vectors"
	paramTexts          = "texts"
	paramMetadata       = "metadata"
	paramIDs            = "ids"
	paramQuery          = "query"
	paramTopK           = "top_k"
	paramFilter         = "filter"
	paramPath           = "path"
	paramLanguage       = "language"
	paramText           = "text"
	paramSource         = "source"
	paramChunkSize      = "chunk_size"
	paramChunkOverlap   = "chunk_overlap"
	paramModel          = "embedding_model"
	paramMode           = "embedding_mode"
)

// DefaultTopK is the number of search results returned when top_k is omitted.
const DefaultTopK = 3

// Defaults are the server-configured values for optional tool parameters.
type Defaults struct {
	EvalMode       backend.EvalMode
	QueryEncrypted bool
	Chunk          chunker.Params
	TopK           int
}

// Toolset implements the vector search tools on top of a backend adapter and
// an embedding provider.
type Toolset struct {
	adapter  backend.Adapter
	embedder embeddings.Provider
	ingest   *ingestion.Service
	defaults Defaults
}

// NewToolset creates the toolset. Zero defaults fall back to built-in values.
func NewToolset(adapter backend.Adapter, embedder embeddings.Provider, defaults Defaults) *Toolset {
	if defaults.EvalMode == "" {
		defaults.EvalMode = backend.EvalModeMM
	}
	if defaults.Chunk.Size <= 0 {
		defaults.Chunk = chunker.DefaultParams()
	}
	if defaults.TopK <= 0 {
		defaults.TopK = DefaultTopK
	}
	return &Toolset{
		adapter:  adapter,
		embedder: embedder,
		ingest:   ingestion.NewService(adapter, embedder),
		defaults: defaults,
	}
}

// Register adds every tool of the set to r.
func (t *Toolset) Register(r *Registry) {
	for _, tool := range t.Tools() {
		r.Register(tool)
	}
}

// Tools returns the tool definitions in their listing order.
func (t *Toolset) Tools() []Tool {
	indexName := Param{Name: paramIndexName, Type: TypeString, Required: true, Description: "Name of the index"}
	model := Param{Name: paramModel, Type: TypeString,
		Description: "Embedding model; the server default when omitted"}
	mode := Param{Name: paramMode, Type: TypeString,
		Description: "Embedding backend: sbert, huggingface or openai"}
	chunkSize := Param{Name: paramChunkSize, Type: TypeInteger, Default: t.defaults.Chunk.Size,
		Description: "Chunk window size in characters"}
	chunkOverlap := Param{Name: paramChunkOverlap, Type: TypeInteger, Default: t.defaults.Chunk.Overlap,
		Description: "Characters shared by consecutive chunks"}
	docMetadata := Param{Name: paramMetadata, Type: TypeObject,
		Description: "Metadata attached to every chunk"}

	return []Tool{
		{
			Name:        ToolGetIndexList,
			Description: "List the indexes on the vector search backend.",
			Annotations: mcp.ToolAnnotation{ReadOnlyHint: mcp.ToBoolPtr(true)},
			Handler:     t.getIndexList,
		},
		{
			Name:        ToolGetIndexInfo,
			Description: "Describe one index: dimension, eval mode, encryption flags and record count.",
			Params:      []Param{indexName},
			Annotations: mcp.ToolAnnotation{ReadOnlyHint: mcp.ToBoolPtr(true)},
			Handler:     t.getIndexInfo,
		},
		{
			Name:        ToolCreateIndex,
			Description: "Create an encrypted index with a fixed vector dimension.",
			Params: []Param{
				indexName,
				{Name: paramDimension, Type: TypeInteger, Required: true, Description: "Vector dimension"},
				{Name: paramEvalMode, Type: TypeString, Default: string(t.defaults.EvalMode),
					Description: "Evaluation mode: rmp or mm"},
				{Name: paramQueryEncrypted, Type: TypeBoolean, Default: t.defaults.QueryEncrypted,
					Description: "Whether queries against the index are encrypted"},
			},
			Handler: t.createIndex,
		},
		{
			Name: ToolInsert,
			Description: "Insert records into an index. Pass either vectors, or texts to embed; " +
				"ids and metadata, when given, align with them.",
			Params: []Param{
				indexName,
				{Name: paramVectors, Type: TypeArray, Description: "Vectors to insert",
					Items: map[string]any{"type": "array", "items": map[string]any{"type": "number"}}},
				{Name: paramTexts, Type: TypeArray, Description: "Texts to embed and insert",
					Items: map[string]any{"type": "string"}},
				{Name: paramMetadata, Type: TypeArray, Description: "Metadata per record",
					Items: map[string]any{"type": "object"}},
				{Name: paramIDs, Type: TypeArray, Description: "Record ids",
					Items: map[string]any{"type": "string"}},
				model,
				mode,
			},
			Handler: t.insert,
		},
		{
			Name:        ToolSearch,
			Description: "Search an index with a text query, which is embedded, or a raw query vector.",
			Params: []Param{
				indexName,
				{Name: paramQuery, Type: TypeString, AltTypes: []Type{TypeArray}, Required: true,
					Items: map[string]any{"type": "number"}, Description: "Query text or vector"},
				{Name: paramTopK, Type: TypeInteger, Default: t.defaults.TopK,
					Description: "Maximum number of results"},
				{Name: paramFilter, Type: TypeObject, Description: "Metadata equality filter"},
				model,
				mode,
			},
			Annotations: mcp.ToolAnnotation{ReadOnlyHint: mcp.ToBoolPtr(true)},
			Handler:     t.search,
		},
		{
			Name:        ToolInsertDocumentsFromPath,
			Description: "Load documents from a file or directory, chunk, embed and insert them.",
			Params: []Param{
				indexName,
				{Name: paramPath, Type: TypeString, Required: true, Description: "File or directory to load"},
				{Name: paramLanguage, Type: TypeString, Default: string(chunker.LanguageDocument),
					Description: "Files to pick up: document, python, pdf or all"},
				chunkSize,
				chunkOverlap,
				model,
				mode,
				docMetadata,
			},
			Handler: t.insertDocumentsFromPath,
		},
		{
			Name:        ToolInsertDocumentsFromText,
			Description: "Chunk, embed and insert a text document.",
			Params: []Param{
				indexName,
				{Name: paramText, Type: TypeString, Required: true, Description: "Document text"},
				{Name: paramSource, Type: TypeString, Description: "Document name used in chunk ids"},
				chunkSize,
				chunkOverlap,
				model,
				mode,
				docMetadata,
			},
			Handler: t.insertDocumentsFromText,
		},
	}
}

func (t *Toolset) getIndexList(ctx context.Context, _ Args) (any, error) {
	return t.adapter.ListIndexes(ctx)
}

func (t *Toolset) getIndexInfo(ctx context.Context, args Args) (any, error) {
	return t.adapter.DescribeIndex(ctx, args.String(paramIndexName))
}

func (t *Toolset) createIndex(ctx context.Context, args Args) (any, error) {
	evalMode, err := backend.ParseEvalMode(args.String(paramEvalMode))
	if err != nil {
		return nil, &ValidationError{Param: paramEvalMode, Detail: err.Error(), Err: ErrInvalidParameter}
	}
	return t.adapter.CreateIndex(ctx, backend.IndexSpec{
		Name:           args.String(paramIndexName),
		Dimension:      args.Int(paramDimension),
		EvalMode:       evalMode,
		QueryEncrypted: args.Bool(paramQueryEncrypted),
	})
}

type insertResult struct {
	InsertedCount int `json:"inserted_count"`
}

func (t *Toolset) insert(ctx context.Context, args Args) (any, error) {
	hasVectors, hasTexts := args.Has(paramVectors), args.Has(paramTexts)
	if hasVectors == hasTexts {
		return nil, invalidParam(paramVectors, "exactly one of %s or %s is required", paramVectors, paramTexts)
	}

	n := args.Len(paramVectors)
	if hasTexts {
		n = args.Len(paramTexts)
	}
	for _, p := range []string{paramIDs, paramMetadata} {
		if args.Has(p) && args.Len(p) != n {
			return nil, invalidParam(p, "got %d entries for %d records", args.Len(p), n)
		}
	}
	// nothing to embed or write
	if n == 0 {
		return insertResult{}, nil
	}

	var (
		vectors [][]float32
		texts   []string
	)
	if hasTexts {
		mode, err := parseMode(args)
		if err != nil {
			return nil, err
		}
		texts = args.Strings(paramTexts)
		vectors, err = t.embedder.Embed(ctx, texts, args.String(paramModel), mode)
		if err != nil {
			return nil, err
		}
		if len(vectors) != n {
			return nil, fmt.Errorf("embedding returned %d vectors for %d texts", len(vectors), n)
		}
	} else {
		vectors = args.Vectors(paramVectors)
	}

	ids := args.Strings(paramIDs)
	metadata := args.Objects(paramMetadata)
	records := make([]backend.Record, n)
	for i := range records {
		r := backend.Record{Vector: vectors[i]}
		if ids != nil {
			r.ID = ids[i]
		}
		if metadata != nil && metadata[i] != nil {
			r.Metadata = maps.Clone(metadata[i])
		}
		if texts != nil {
			if r.Metadata == nil {
				r.Metadata = map[string]any{}
			}
			r.Metadata[ingestion.MetaText] = texts[i]
		}
		records[i] = r
	}

	count, err := t.adapter.Insert(ctx, args.String(paramIndexName), records)
	if err != nil {
		return nil, err
	}
	return insertResult{InsertedCount: count}, nil
}

func (t *Toolset) search(ctx context.Context, args Args) (any, error) {
	topK := args.Int(paramTopK)
	if topK <= 0 {
		return nil, invalidParam(paramTopK, "must be positive, got %d", topK)
	}

	var query []float32
	if text, ok := args[paramQuery].(string); ok {
		if text == "" {
			return nil, invalidParam(paramQuery, "query text is empty")
		}
		mode, err := parseMode(args)
		if err != nil {
			return nil, err
		}
		vectors, err := t.embedder.Embed(ctx, []string{text}, args.String(paramModel), mode)
		if err != nil {
			return nil, err
		}
		if len(vectors) != 1 {
			return nil, fmt.Errorf("embedding returned %d vectors for one query", len(vectors))
		}
		query = vectors[0]
	} else {
		query = args.Vector(paramQuery)
	}

	return t.adapter.Search(ctx, args.String(paramIndexName), query, topK, backend.Filter(args.Object(paramFilter)))
}

func (t *Toolset) insertDocumentsFromPath(ctx context.Context, args Args) (any, error) {
	params, mode, err := ingestOptions(args)
	if err != nil {
		return nil, err
	}
	lang, err := chunker.ParseLanguage(args.String(paramLanguage))
	if err != nil {
		return nil, err
	}

	docs, err := chunker.LoadPath(ctx, args.String(paramPath), lang)
	if err != nil {
		return nil, err
	}
	if meta := args.Object(paramMetadata); meta != nil {
		for i := range docs {
			docs[i].Metadata = maps.Clone(meta)
		}
	}

	return t.ingest.Ingest(ctx, ingestion.Request{
		Index:     args.String(paramIndexName),
		Documents: docs,
		Params:    params,
		Model:     args.String(paramModel),
		Mode:      mode,
	})
}

func (t *Toolset) insertDocumentsFromText(ctx context.Context, args Args) (any, error) {
	params, mode, err := ingestOptions(args)
	if err != nil {
		return nil, err
	}
	doc := chunker.LoadText(args.String(paramText), args.String(paramSource), args.Object(paramMetadata))

	return t.ingest.Ingest(ctx, ingestion.Request{
		Index:     args.String(paramIndexName),
		Documents: []chunker.Document{doc},
		Params:    params,
		Model:     args.String(paramModel),
		Mode:      mode,
	})
}

// ingestOptions checks the chunking and embedding arguments before any I/O.
func ingestOptions(args Args) (chunker.Params, embeddings.Mode, error) {
	params := chunker.Params{Size: args.Int(paramChunkSize), Overlap: args.Int(paramChunkOverlap)}
	if err := params.Validate(); err != nil {
		return chunker.Params{}, "", err
	}
	mode, err := parseMode(args)
	if err != nil {
		return chunker.Params{}, "", err
	}
	return params, mode, nil
}

// parseMode returns the requested embedding mode, or "" for the server default.
func parseMode(args Args) (embeddings.Mode, error) {
	s := args.String(paramMode)
	if s == "" {
		return "", nil
	}
	mode, err := embeddings.ParseMode(s)
	if err != nil {
		return "", fmt.Errorf("%s: %w", paramMode, err)
	}
	return mode, nil
}
