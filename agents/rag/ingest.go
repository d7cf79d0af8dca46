package rag

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bububa/catalogue-rag/components"
	"github.com/bububa/catalogue-rag/components/embedder"
	"github.com/bububa/catalogue-rag/components/vectordb"
	"github.com/bububa/catalogue-rag/internal/observability"
)

// SkippedBatch is a batch whose chunks were not embedded or not stored
type SkippedBatch struct {
	Batch int      `json:"batch" yaml:"batch"`
	IDs   []string `json:"ids" yaml:"ids"`
	Err   error    `json:"-" yaml:"-"`
	Error string   `json:"error" yaml:"error"`
}

// IngestReport summarises one ingestion run
type IngestReport struct {
	Namespace string              `json:"namespace" yaml:"namespace"`
	Records   int                 `json:"records" yaml:"records"`
	Chunks    int                 `json:"chunks" yaml:"chunks"`
	Oversized int                 `json:"oversized,omitempty" yaml:"oversized,omitempty"`
	Batches   int                 `json:"batches" yaml:"batches"`
	Upserted  int                 `json:"upserted" yaml:"upserted"`
	Skipped   []SkippedBatch      `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Usage     components.LLMUsage `json:"usage" yaml:"usage"`
	Elapsed   time.Duration       `json:"elapsed" yaml:"elapsed"`
}

// SkippedIDs lists every chunk id that did not reach the index
func (r *IngestReport) SkippedIDs() []string {
	var ret []string
	for _, b := range r.Skipped {
		ret = append(ret, b.IDs...)
	}
	return ret
}

type oversizer interface {
	Oversized(embedder.Chunk) bool
}

// Chunk splits every record, in order
func (r *RAG) Chunk(records []embedder.SourceRecord) ([]embedder.Chunk, error) {
	var ret []embedder.Chunk
	for idx, record := range records {
		chunks, err := r.chunker.Split(record)
		if err != nil {
			return nil, fmt.Errorf("record %d (%s): %w", idx, record.Title(), err)
		}
		ret = append(ret, chunks...)
	}
	return ret, nil
}

// Ingest chunks, embeds and upserts records. A batch that fails after its
// retries is skipped and reported; only cancellation stops the run.
// Upserts are idempotent so a run can be repeated safely.
func (r *RAG) Ingest(ctx context.Context, records []embedder.SourceRecord) (*IngestReport, error) {
	start := time.Now()
	ctx, span := observability.StartIngestSpan(ctx, r.namespace, len(records))
	report, err := r.ingest(ctx, records)
	if report != nil {
		report.Elapsed = time.Since(start)
		observability.RecordUsage(span, &report.Usage)
	}
	observability.EndSpan(span, err)
	return report, err
}

func (r *RAG) ingest(ctx context.Context, records []embedder.SourceRecord) (*IngestReport, error) {
	chunks, err := r.Chunk(records)
	if err != nil {
		return nil, err
	}
	batches := embedder.Batches(chunks, r.batchSize)
	report := &IngestReport{
		Namespace: r.namespace,
		Records:   len(records),
		Chunks:    len(chunks),
		Batches:   len(batches),
	}
	if o, ok := r.chunker.(oversizer); ok {
		for _, chunk := range chunks {
			if o.Oversized(chunk) {
				report.Oversized++
				r.logger.Warn("chunk exceeds token budget", "id", chunk.ID, "header", chunk.Source.Title(), "tokens", chunk.TokenSize)
			}
		}
	}
	r.logger.Info("ingesting catalogue",
		"namespace", r.namespace, "records", len(records), "chunks", len(chunks), "batches", len(batches))

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(r.concurrency)
	for idx, batch := range batches {
		n := idx + 1
		g.Go(func() error {
			var (
				usage *components.LLMUsage
				err   = ctx.Err()
			)
			batchStart := time.Now()
			if err == nil {
				usage, err = r.ingestBatch(ctx, n, batch)
			}
			mu.Lock()
			defer mu.Unlock()
			report.Usage.Merge(usage)
			if err != nil {
				report.Skipped = append(report.Skipped, SkippedBatch{
					Batch: n,
					IDs:   embedder.IDs(batch),
					Err:   err,
					Error: err.Error(),
				})
				r.logger.Warn("batch skipped", "batch", n, "of", len(batches), "ids", embedder.IDs(batch), "error", err)
				return nil
			}
			report.Upserted += len(batch)
			r.logger.Info("batch processed", "batch", n, "of", len(batches), "chunks", len(batch), "elapsed", time.Since(batchStart))
			return nil
		})
	}
	_ = g.Wait()
	sort.Slice(report.Skipped, func(i, j int) bool {
		return report.Skipped[i].Batch < report.Skipped[j].Batch
	})
	if err := ctx.Err(); err != nil {
		return report, err
	}
	r.logger.Info("catalogue ingested",
		"namespace", r.namespace, "upserted", report.Upserted, "skipped", len(report.Skipped))
	return report, nil
}

func (r *RAG) ingestBatch(ctx context.Context, n int, batch []embedder.Chunk) (*components.LLMUsage, error) {
	ctx, span := observability.StartBatchSpan(ctx, n, len(batch))
	usage := new(components.LLMUsage)
	err := r.embedAndStore(ctx, batch, usage)
	observability.RecordUsage(span, usage)
	observability.EndSpan(span, err)
	return usage, err
}

func (r *RAG) embedAndStore(ctx context.Context, batch []embedder.Chunk, usage *components.LLMUsage) error {
	embedded, err := embedder.EmbedChunks(ctx, r.embedder, batch, usage)
	if err != nil {
		return err
	}
	records := make([]vectordb.Record, 0, len(embedded))
	for _, v := range embedded {
		records = append(records, vectordb.NewRecord(v))
	}
	return r.retry(ctx, "upsert", func(attemptCtx context.Context) error {
		return r.vectordb.Upsert(attemptCtx, r.namespace, records...)
	})
}
