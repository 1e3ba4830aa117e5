package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/stacklok/envector-mcp/pkg/logger"
)

var (
	bucketIndexes = []byte("indexes")
	bucketRecords = []byte("records")
	keyConfig     = []byte("config")
)

// scanCheckEvery is how many records a search scans between context checks.
const scanCheckEvery = 256

type storedIndex struct {
	Dimension      int      `json:"dimension"`
	EvalMode       EvalMode `json:"eval_mode"`
	IndexEncrypted bool     `json:"index_encrypted"`
	QueryEncrypted bool     `json:"query_encrypted"`
}

type storedRecord struct {
	ID       string         `json:"id"`
	Vector   []float32      `json:"vector"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Embedded is a single-file engine for local use and tests. Each index is a
// bucket holding its config and its records; search is a full cosine scan.
type Embedded struct {
	db      *bbolt.DB
	timeout time.Duration
}

var _ Adapter = (*Embedded)(nil)

// NewEmbedded opens or creates the database at path.
func NewEmbedded(path string, timeout time.Duration) (*Embedded, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrBackendUnavailable, path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketIndexes)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize %s: %w", path, err)
	}

	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger.Infof("Opened embedded vector store at %s", path)
	return &Embedded{db: db, timeout: timeout}, nil
}

// Close closes the database file.
func (e *Embedded) Close() error {
	return e.db.Close()
}

// ListIndexes returns all indexes in name order.
func (e *Embedded) ListIndexes(ctx context.Context) ([]Index, error) {
	var out []Index
	err := runWithTimeout(ctx, e.timeout, "list indexes", func(context.Context) error {
		return e.db.View(func(tx *bbolt.Tx) error {
			root := tx.Bucket(bucketIndexes)
			return root.ForEachBucket(func(name []byte) error {
				idx, err := readIndex(root.Bucket(name), string(name))
				if err != nil {
					return err
				}
				out = append(out, *idx)
				return nil
			})
		})
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Index{}
	}
	return out, nil
}

// DescribeIndex returns one index.
func (e *Embedded) DescribeIndex(ctx context.Context, name string) (*Index, error) {
	var idx *Index
	err := runWithTimeout(ctx, e.timeout, "describe index "+name, func(context.Context) error {
		return e.db.View(func(tx *bbolt.Tx) error {
			b, err := indexBucket(tx, name)
			if err != nil {
				return err
			}
			idx, err = readIndex(b, name)
			return err
		})
	})
	return idx, err
}

// CreateIndex creates an empty index.
func (e *Embedded) CreateIndex(ctx context.Context, spec IndexSpec) (*Index, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if spec.EvalMode == "" {
		spec.EvalMode = EvalModeMM
	}

	stored := storedIndex{
		Dimension:      spec.Dimension,
		EvalMode:       spec.EvalMode,
		IndexEncrypted: true,
		QueryEncrypted: spec.QueryEncrypted,
	}
	err := runWithTimeout(ctx, e.timeout, "create index "+spec.Name, func(context.Context) error {
		return e.db.Update(func(tx *bbolt.Tx) error {
			b, err := tx.Bucket(bucketIndexes).CreateBucket([]byte(spec.Name))
			if errors.Is(err, bbolt.ErrBucketExists) {
				return fmt.Errorf("%w: %s", ErrIndexAlreadyExists, spec.Name)
			}
			if err != nil {
				return err
			}
			if _, err := b.CreateBucket(bucketRecords); err != nil {
				return err
			}
			data, err := json.Marshal(stored)
			if err != nil {
				return err
			}
			return b.Put(keyConfig, data)
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Infof("Created index %s (dimension %d, eval mode %s)", spec.Name, spec.Dimension, spec.EvalMode)
	return &Index{
		Name:           spec.Name,
		Dimension:      stored.Dimension,
		EvalMode:       stored.EvalMode,
		IndexEncrypted: stored.IndexEncrypted,
		QueryEncrypted: stored.QueryEncrypted,
	}, nil
}

// Insert writes all records in one transaction, so a failure writes nothing.
func (e *Embedded) Insert(ctx context.Context, index string, records []Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	err := runWithTimeout(ctx, e.timeout, "insert into "+index, func(ctx context.Context) error {
		return e.db.Update(func(tx *bbolt.Tx) error {
			b, err := indexBucket(tx, index)
			if err != nil {
				return err
			}
			idx, err := readIndex(b, index)
			if err != nil {
				return err
			}
			if err := checkDimensions(index, idx.Dimension, records); err != nil {
				return err
			}

			rb := b.Bucket(bucketRecords)
			for i, r := range records {
				if err := ctx.Err(); err != nil {
					return err
				}
				id := r.ID
				if id == "" {
					id = uuid.NewString()
				}
				data, err := json.Marshal(storedRecord{ID: id, Vector: r.Vector, Metadata: r.Metadata})
				if err != nil {
					return fmt.Errorf("%w: record %d: %v", ErrInvalidArgument, i, err)
				}
				if err := rb.Put([]byte(id), data); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		var dm *DimensionMismatchError
		if errors.As(err, &dm) || errors.Is(err, ErrIndexNotFound) {
			return 0, err
		}
		return 0, &InsertError{Index: index, Rejected: allIndices(len(records)), Err: err}
	}

	logger.Debugf("Inserted %d records into %s", len(records), index)
	return len(records), nil
}

// Search scans every record in the index.
func (e *Embedded) Search(ctx context.Context, index string, query []float32, topK int, filter Filter) ([]SearchResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidArgument, topK)
	}

	var results []SearchResult
	err := runWithTimeout(ctx, e.timeout, "search "+index, func(ctx context.Context) error {
		return e.db.View(func(tx *bbolt.Tx) error {
			b, err := indexBucket(tx, index)
			if err != nil {
				return err
			}
			idx, err := readIndex(b, index)
			if err != nil {
				return err
			}
			if err := checkQuery(index, idx.Dimension, query, topK); err != nil {
				return err
			}

			n := 0
			return b.Bucket(bucketRecords).ForEach(func(_, v []byte) error {
				n++
				if n%scanCheckEvery == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				var rec storedRecord
				if err := json.Unmarshal(v, &rec); err != nil {
					return fmt.Errorf("corrupt record in %s: %w", index, err)
				}
				if !filter.Matches(rec.Metadata) {
					return nil
				}
				results = append(results, SearchResult{
					ID:       rec.ID,
					Score:    cosine(query, rec.Vector),
					Metadata: rec.Metadata,
				})
				return nil
			})
		})
	})
	if err != nil {
		return nil, err
	}

	sortResults(results)
	if len(results) > topK {
		results = results[:topK]
	}
	if results == nil {
		results = []SearchResult{}
	}
	return results, nil
}

func indexBucket(tx *bbolt.Tx, name string) (*bbolt.Bucket, error) {
	b := tx.Bucket(bucketIndexes).Bucket([]byte(name))
	if b == nil {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, name)
	}
	return b, nil
}

func readIndex(b *bbolt.Bucket, name string) (*Index, error) {
	var s storedIndex
	if err := json.Unmarshal(b.Get(keyConfig), &s); err != nil {
		return nil, fmt.Errorf("corrupt config for index %s: %w", name, err)
	}
	return &Index{
		Name:           name,
		Dimension:      s.Dimension,
		EvalMode:       s.EvalMode,
		IndexEncrypted: s.IndexEncrypted,
		QueryEncrypted: s.QueryEncrypted,
		RecordCount:    uint64(b.Bucket(bucketRecords).Stats().KeyN),
	}, nil
}

// cosine returns the cosine similarity of a and b, or 0 if either is a zero vector.
func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
