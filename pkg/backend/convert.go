package backend

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
)

const (
	// payloadIDKey holds the caller's record id next to the user metadata.
	payloadIDKey = "_id"

	metaEvalMode       = "eval_mode"
	metaIndexEncrypted = "index_encrypted"
	metaQueryEncrypted = "query_encrypted"
)

// pointNamespace scopes the UUIDv5 ids derived from caller record ids.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:envector-mcp:record"))

// pointID maps a caller id to a deterministic point id.
func pointID(id string) *pb.PointId {
	return pb.NewID(uuid.NewSHA1(pointNamespace, []byte(id)).String())
}

func toPayload(id string, metadata map[string]any) (map[string]*pb.Value, error) {
	m := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		nv, err := normalizeValue(v)
		if err != nil {
			return nil, fmt.Errorf("metadata key %q: %w", k, err)
		}
		m[k] = nv
	}
	m[payloadIDKey] = id
	return pb.TryValueMap(m)
}

// maxExactInt is the largest integer a float64 holds exactly.
const maxExactInt = 1 << 53

// normalizeValue reduces a Go value to the types pb.NewValue understands.
// Integral floats, which is how JSON numbers decode, are stored as integers
// so integer filters match them. Anything that is not already a JSON scalar,
// []any or map[string]any goes through a JSON round trip.
func normalizeValue(v any) (any, error) {
	switch t := v.(type) {
	case float64:
		return integral(t), nil
	case float32:
		return integral(float64(t)), nil
	case nil, bool, string, int, int32, int64, uint, uint32, uint64:
		return v, nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			ne, err := normalizeValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = ne
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			ne, err := normalizeValue(e)
			if err != nil {
				return nil, err
			}
			out[k] = ne
		}
		return out, nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	return normalizeValue(decoded)
}

func integral(f float64) any {
	if f == math.Trunc(f) && math.Abs(f) <= maxExactInt {
		return int64(f)
	}
	return f
}

// fromPayload splits a stored payload into the caller id and the user metadata.
func fromPayload(payload map[string]*pb.Value) (string, map[string]any) {
	meta := make(map[string]any, len(payload))
	for k, v := range payload {
		meta[k] = fromValue(v)
	}
	id, _ := meta[payloadIDKey].(string)
	delete(meta, payloadIDKey)
	return id, meta
}

func fromValue(v *pb.Value) any {
	switch k := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return k.StringValue
	case *pb.Value_IntegerValue:
		return k.IntegerValue
	case *pb.Value_DoubleValue:
		return k.DoubleValue
	case *pb.Value_BoolValue:
		return k.BoolValue
	case *pb.Value_StructValue:
		out := make(map[string]any, len(k.StructValue.GetFields()))
		for name, f := range k.StructValue.GetFields() {
			out[name] = fromValue(f)
		}
		return out
	case *pb.Value_ListValue:
		vals := k.ListValue.GetValues()
		out := make([]any, len(vals))
		for i, e := range vals {
			out[i] = fromValue(e)
		}
		return out
	default:
		return nil
	}
}

// toFilter turns equality entries into must-match conditions.
func toFilter(f Filter) (*pb.Filter, error) {
	if len(f) == 0 {
		return nil, nil
	}
	must := make([]*pb.Condition, 0, len(f))
	for _, k := range sortedKeys(f) {
		switch v := f[k].(type) {
		case string:
			must = append(must, pb.NewMatch(k, v))
		case bool:
			must = append(must, pb.NewMatchBool(k, v))
		default:
			n, ok := toFloat(v)
			if !ok || n != float64(int64(n)) {
				return nil, fmt.Errorf("%w: filter on %q supports strings, booleans and integers, got %T",
					ErrInvalidArgument, k, v)
			}
			must = append(must, pb.NewMatchInt(k, int64(n)))
		}
	}
	return &pb.Filter{Must: must}, nil
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}

func indexMetadata(spec IndexSpec) map[string]*pb.Value {
	return map[string]*pb.Value{
		metaEvalMode:       pb.NewValueString(string(spec.EvalMode)),
		metaIndexEncrypted: pb.NewValueBool(true),
		metaQueryEncrypted: pb.NewValueBool(spec.QueryEncrypted),
	}
}

func indexFromInfo(name string, info *pb.CollectionInfo) *Index {
	idx := &Index{
		Name:           name,
		Dimension:      int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()),
		IndexEncrypted: true,
		RecordCount:    info.GetPointsCount(),
	}
	meta := info.GetConfig().GetMetadata()
	if v, ok := meta[metaEvalMode]; ok {
		idx.EvalMode = EvalMode(v.GetStringValue())
	}
	if v, ok := meta[metaIndexEncrypted]; ok {
		idx.IndexEncrypted = v.GetBoolValue()
	}
	if v, ok := meta[metaQueryEncrypted]; ok {
		idx.QueryEncrypted = v.GetBoolValue()
	}
	return idx
}
