// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package ingestion runs the chunk, embed and insert pipeline for documents.
package ingestion

import (
	"context"
	"fmt"
	"maps"

	"golang.org/x/sync/errgroup"

	"github.com/stacklok/envector-mcp/pkg/backend"
	"github.com/stacklok/envector-mcp/pkg/chunker"
	"github.com/stacklok/envector-mcp/pkg/embeddings"
	"github.com/stacklok/envector-mcp/pkg/logger"
)

const (
	// DefaultBatchSize is the number of chunks sent per embedding request.
	DefaultBatchSize = 32

	// maxConcurrentBatches bounds in-flight embedding requests per document.
	maxConcurrentBatches = 4

	// MetaText is the record metadata key holding the chunk text.
	MetaText = "text"
)

// Request describes one ingestion call.
type Request struct {
	Index     string
	Documents []chunker.Document
	Params    chunker.Params
	Model     string
	Mode      embeddings.Mode
	// BatchSize overrides DefaultBatchSize when positive.
	BatchSize int
}

// Result summarizes an ingestion call.
type Result struct {
	InsertedCount int `json:"inserted_count"`
	Documents     int `json:"documents"`
	Chunks        int `json:"chunks"`
}

// Service composes the chunker, an embedding provider and a backend adapter.
type Service struct {
	adapter  backend.Adapter
	embedder embeddings.Provider
}

// NewService creates an ingestion service.
func NewService(adapter backend.Adapter, embedder embeddings.Provider) *Service {
	return &Service{adapter: adapter, embedder: embedder}
}

// Ingest chunks, embeds and inserts every document in order. Each document
// is inserted as one batch; documents inserted before a failure stay inserted.
func (s *Service) Ingest(ctx context.Context, req Request) (*Result, error) {
	if err := req.Params.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.adapter.DescribeIndex(ctx, req.Index); err != nil {
		return nil, err
	}
	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	result := &Result{}
	for _, doc := range req.Documents {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		chunks, err := chunker.Collect(doc, req.Params)
		if err != nil {
			return result, err
		}
		if len(chunks) == 0 {
			logger.Debugf("Skipping empty document %s", doc.Source)
			continue
		}

		vectors, err := s.embedChunks(ctx, chunks, req.Model, req.Mode, batchSize)
		if err != nil {
			return result, fmt.Errorf("embedding %s: %w", doc.Source, err)
		}

		records := make([]backend.Record, len(chunks))
		for i, c := range chunks {
			meta := make(map[string]any, len(c.Metadata)+1)
			maps.Copy(meta, c.Metadata)
			meta[MetaText] = c.Text
			records[i] = backend.Record{ID: c.ID, Vector: vectors[i], Metadata: meta}
		}

		n, err := s.adapter.Insert(ctx, req.Index, records)
		if err != nil {
			return result, fmt.Errorf("inserting %s: %w", doc.Source, err)
		}

		result.InsertedCount += n
		result.Chunks += len(chunks)
		result.Documents++
		logger.Debugf("Ingested %s into %s (%d chunks)", doc.Source, req.Index, len(chunks))
	}

	logger.Infof("Ingested %d documents (%d chunks) into %s", result.Documents, result.Chunks, req.Index)
	return result, nil
}

// embedChunks embeds chunk texts in batches, keeping the output aligned with chunks.
func (s *Service) embedChunks(
	ctx context.Context, chunks []chunker.Chunk, model string, mode embeddings.Mode, batchSize int,
) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentBatches)

	for start := 0; start < len(chunks); start += batchSize {
		end := min(start+batchSize, len(chunks))
		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for _, c := range chunks[start:end] {
				texts = append(texts, c.Text)
			}
			out, err := s.embedder.Embed(ctx, texts, model, mode)
			if err != nil {
				return err
			}
			if len(out) != len(texts) {
				return fmt.Errorf("got %d vectors for %d texts", len(out), len(texts))
			}
			// batches write disjoint ranges
			copy(vectors[start:end], out)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}
