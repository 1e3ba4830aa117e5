// Package backend provides the search engine adapter used by the tool
// handlers: index management, vector insert and similarity search.
package backend

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/stacklok/envector-mcp/pkg/validation"
)

//go:generate mockgen -destination=mocks/mock_adapter.go -package=mocks -source=adapter.go Adapter

// EvalMode selects how the engine evaluates similarity on encrypted data.
// The value is stored with the index and otherwise passed through.
type EvalMode string

const (
	// EvalModeRMP is the row-major packing evaluation mode.
	EvalModeRMP EvalMode = "rmp"
	// EvalModeMM is the matrix multiplication evaluation mode.
	EvalModeMM EvalMode = "mm"
)

// ParseEvalMode validates an eval mode name.
func ParseEvalMode(s string) (EvalMode, error) {
	switch m := EvalMode(strings.ToLower(strings.TrimSpace(s))); m {
	case EvalModeRMP, EvalModeMM:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown eval mode %q (expected rmp or mm)", ErrInvalidArgument, s)
	}
}

// Index describes a stored index.
type Index struct {
	Name           string   `json:"index_name"`
	Dimension      int      `json:"dimension"`
	EvalMode       EvalMode `json:"eval_mode"`
	IndexEncrypted bool     `json:"index_encrypted"`
	QueryEncrypted bool     `json:"query_encrypted"`
	RecordCount    uint64   `json:"record_count"`
}

// IndexSpec is the input to CreateIndex.
type IndexSpec struct {
	Name           string
	Dimension      int
	EvalMode       EvalMode
	QueryEncrypted bool
}

// Validate checks the index settings without touching the engine.
func (s IndexSpec) Validate() error {
	if err := validation.ValidateIndexName(s.Name); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if s.Dimension <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDimension, s.Dimension)
	}
	if s.EvalMode != "" {
		if _, err := ParseEvalMode(string(s.EvalMode)); err != nil {
			return err
		}
	}
	return nil
}

// Record is one vector to insert. An empty ID gets a generated one.
type Record struct {
	ID       string
	Vector   []float32
	Metadata map[string]any
}

// SearchResult is one hit, ordered by descending score.
type SearchResult struct {
	ID       string         `json:"id"`
	Score    float32        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Filter restricts a search to records whose metadata equals every entry.
type Filter map[string]any

// Matches reports whether metadata satisfies every entry of the filter.
func (f Filter) Matches(metadata map[string]any) bool {
	for k, want := range f {
		got, ok := metadata[k]
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// Adapter is the blocking contract every engine implementation honors.
type Adapter interface {
	ListIndexes(ctx context.Context) ([]Index, error)
	DescribeIndex(ctx context.Context, name string) (*Index, error)
	CreateIndex(ctx context.Context, spec IndexSpec) (*Index, error)
	Insert(ctx context.Context, index string, records []Record) (int, error)
	Search(ctx context.Context, index string, query []float32, topK int, filter Filter) ([]SearchResult, error)
	Close() error
}

// checkDimensions returns a *DimensionMismatchError naming every record whose
// vector length differs from dim.
func checkDimensions(index string, dim int, records []Record) error {
	var rejected []int
	for i, r := range records {
		if len(r.Vector) != dim {
			rejected = append(rejected, i)
		}
	}
	if len(rejected) > 0 {
		return &DimensionMismatchError{Index: index, Expected: dim, Rejected: rejected}
	}
	return nil
}

func checkQuery(index string, dim int, query []float32, topK int) error {
	if topK <= 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidArgument, topK)
	}
	if len(query) != dim {
		return &DimensionMismatchError{Index: index, Expected: dim, Rejected: []int{0}}
	}
	return nil
}

// sortResults orders by descending score, then ascending id.
func sortResults(results []SearchResult) {
	slices.SortStableFunc(results, func(a, b SearchResult) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// valuesEqual compares decoded JSON values, treating all numeric types alike.
func valuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// runWithTimeout bounds fn by timeout. An expired deadline becomes
// ErrBackendTimeout only while the caller's own context is still live.
func runWithTimeout(ctx context.Context, timeout time.Duration, op string, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(callCtx)
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s after %s", ErrBackendTimeout, op, timeout)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	return err
}
