package backend

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// fakePoints provides a minimal test double for pointsClient.
type fakePoints struct {
	upsertFunc func(ctx context.Context, in *pb.UpsertPoints) (*pb.PointsOperationResponse, error)
	searchFunc func(ctx context.Context, in *pb.SearchPoints) (*pb.SearchResponse, error)
}

func (f *fakePoints) Upsert(ctx context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	if f.upsertFunc != nil {
		return f.upsertFunc(ctx, in)
	}
	return &pb.PointsOperationResponse{}, nil
}

func (f *fakePoints) Search(ctx context.Context, in *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	if f.searchFunc != nil {
		return f.searchFunc(ctx, in)
	}
	return &pb.SearchResponse{}, nil
}

// fakeCollections keeps collections in memory.
type fakeCollections struct {
	infos   map[string]*pb.CollectionInfo
	listErr error
	created []*pb.CreateCollection
}

func newFakeCollections() *fakeCollections {
	return &fakeCollections{infos: map[string]*pb.CollectionInfo{}}
}

func (f *fakeCollections) add(name string, dim uint64, meta map[string]*pb.Value) {
	count := uint64(7)
	f.infos[name] = &pb.CollectionInfo{
		Config: &pb.CollectionConfig{
			Params:   &pb.CollectionParams{VectorsConfig: pb.NewVectorsConfig(&pb.VectorParams{Size: dim})},
			Metadata: meta,
		},
		PointsCount: &count,
	}
}

func (f *fakeCollections) List(_ context.Context, _ *pb.ListCollectionsRequest, _ ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	resp := &pb.ListCollectionsResponse{}
	for name := range f.infos {
		resp.Collections = append(resp.Collections, &pb.CollectionDescription{Name: name})
	}
	return resp, nil
}

func (f *fakeCollections) Get(_ context.Context, in *pb.GetCollectionInfoRequest, _ ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error) {
	info, ok := f.infos[in.GetCollectionName()]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "Collection `%s` doesn't exist!", in.GetCollectionName())
	}
	return &pb.GetCollectionInfoResponse{Result: info}, nil
}

func (f *fakeCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	f.created = append(f.created, in)
	f.add(in.GetCollectionName(), in.GetVectorsConfig().GetParams().GetSize(), in.GetMetadata())
	return &pb.CollectionOperationResponse{Result: true}, nil
}

func (f *fakeCollections) CollectionExists(_ context.Context, in *pb.CollectionExistsRequest, _ ...grpc.CallOption) (*pb.CollectionExistsResponse, error) {
	_, ok := f.infos[in.GetCollectionName()]
	return &pb.CollectionExistsResponse{Result: &pb.CollectionExists{Exists: ok}}, nil
}

func TestRemote_CreateIndex(t *testing.T) {
	t.Parallel()

	cols := newFakeCollections()
	r := newRemoteWithClients(nil, &fakePoints{}, cols, time.Second)

	idx, err := r.CreateIndex(context.Background(), IndexSpec{Name: "docs", Dimension: 384, QueryEncrypted: true})
	require.NoError(t, err)
	assert.Equal(t, EvalModeMM, idx.EvalMode)
	assert.True(t, idx.IndexEncrypted)

	require.Len(t, cols.created, 1)
	assert.Equal(t, pb.Distance_Cosine, cols.created[0].GetVectorsConfig().GetParams().GetDistance())
	assert.Equal(t, "mm", cols.created[0].GetMetadata()[metaEvalMode].GetStringValue())
	assert.True(t, cols.created[0].GetMetadata()[metaQueryEncrypted].GetBoolValue())

	described, err := r.DescribeIndex(context.Background(), "docs")
	require.NoError(t, err)
	assert.Equal(t, 384, described.Dimension)
	assert.Equal(t, EvalModeMM, described.EvalMode)
	assert.True(t, described.QueryEncrypted)
	assert.Equal(t, uint64(7), described.RecordCount)

	_, err = r.CreateIndex(context.Background(), IndexSpec{Name: "docs", Dimension: 384})
	require.ErrorIs(t, err, ErrIndexAlreadyExists)

	_, err = r.CreateIndex(context.Background(), IndexSpec{Name: "zero"})
	require.ErrorIs(t, err, ErrInvalidDimension)
	assert.Len(t, cols.created, 1)
}

func TestRemote_ListAndDescribe(t *testing.T) {
	t.Parallel()

	cols := newFakeCollections()
	cols.add("b", 4, indexMetadata(IndexSpec{EvalMode: EvalModeRMP}))
	cols.add("a", 8, nil)
	r := newRemoteWithClients(nil, &fakePoints{}, cols, time.Second)

	list, err := r.ListIndexes(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Name)
	assert.Equal(t, 8, list[0].Dimension)
	assert.Equal(t, EvalModeRMP, list[1].EvalMode)

	_, err = r.DescribeIndex(context.Background(), "missing")
	require.ErrorIs(t, err, ErrIndexNotFound)
}

func TestRemote_Insert(t *testing.T) {
	t.Parallel()

	cols := newFakeCollections()
	cols.add("idx", 2, nil)

	var got *pb.UpsertPoints
	points := &fakePoints{upsertFunc: func(_ context.Context, in *pb.UpsertPoints) (*pb.PointsOperationResponse, error) {
		got = in
		return &pb.PointsOperationResponse{}, nil
	}}
	r := newRemoteWithClients(nil, points, cols, time.Second)

	n, err := r.Insert(context.Background(), "idx", []Record{
		{ID: "doc::chunk-0", Vector: []float32{1, 0}, Metadata: map[string]any{"source": "doc", "tags": []string{"a"}}},
		{Vector: []float32{0, 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, got.GetPoints(), 2)
	assert.Equal(t, pointID("doc::chunk-0").GetUuid(), got.GetPoints()[0].GetId().GetUuid())
	assert.Equal(t, "doc::chunk-0", got.GetPoints()[0].GetPayload()[payloadIDKey].GetStringValue())
	assert.Len(t, got.GetPoints()[0].GetPayload()["tags"].GetListValue().GetValues(), 1)
	assert.NotEmpty(t, got.GetPoints()[1].GetPayload()[payloadIDKey].GetStringValue())

	t.Run("dimension mismatch writes nothing", func(t *testing.T) {
		t.Parallel()
		called := false
		r := newRemoteWithClients(nil, &fakePoints{upsertFunc: func(context.Context, *pb.UpsertPoints) (*pb.PointsOperationResponse, error) {
			called = true
			return nil, nil
		}}, cols, time.Second)
		_, err := r.Insert(context.Background(), "idx", []Record{{Vector: []float32{1}}, {Vector: []float32{1, 2}}})
		require.ErrorIs(t, err, ErrDimensionMismatch)
		assert.Equal(t, []int{0}, RejectedRecords(err))
		assert.False(t, called)
	})

	t.Run("rpc failure rejects the whole batch", func(t *testing.T) {
		t.Parallel()
		r := newRemoteWithClients(nil, &fakePoints{upsertFunc: func(context.Context, *pb.UpsertPoints) (*pb.PointsOperationResponse, error) {
			return nil, status.Error(codes.Unavailable, "connection refused")
		}}, cols, time.Second)
		_, err := r.Insert(context.Background(), "idx", []Record{{Vector: []float32{1, 0}}, {Vector: []float32{0, 1}}})
		require.ErrorIs(t, err, ErrBackendUnavailable)
		assert.Equal(t, []int{0, 1}, RejectedRecords(err))
	})
}

func TestRemote_JSONMetadataMatchesIntegerFilter(t *testing.T) {
	t.Parallel()

	var meta map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"page": 3, "ratio": 0.5, "nested": {"n": 2}}`), &meta))

	cols := newFakeCollections()
	cols.add("idx", 2, nil)
	var got *pb.UpsertPoints
	points := &fakePoints{upsertFunc: func(_ context.Context, in *pb.UpsertPoints) (*pb.PointsOperationResponse, error) {
		got = in
		return &pb.PointsOperationResponse{}, nil
	}}
	r := newRemoteWithClients(nil, points, cols, time.Second)

	_, err := r.Insert(context.Background(), "idx", []Record{{ID: "r1", Vector: []float32{1, 0}, Metadata: meta}})
	require.NoError(t, err)

	payload := got.GetPoints()[0].GetPayload()
	require.IsType(t, &pb.Value_IntegerValue{}, payload["page"].GetKind())
	assert.Equal(t, int64(3), payload["page"].GetIntegerValue())
	assert.InDelta(t, 0.5, payload["ratio"].GetDoubleValue(), 0)
	assert.Equal(t, int64(2), payload["nested"].GetStructValue().GetFields()["n"].GetIntegerValue())

	var filter Filter
	require.NoError(t, json.Unmarshal([]byte(`{"page": 3}`), &filter))
	f, err := toFilter(filter)
	require.NoError(t, err)
	require.Len(t, f.GetMust(), 1)
	field := f.GetMust()[0].GetField()
	assert.Equal(t, "page", field.GetKey())
	assert.Equal(t, int64(3), field.GetMatch().GetInteger())

	id, stored := fromPayload(payload)
	assert.Equal(t, "r1", id)
	assert.True(t, filter.Matches(stored), "stored payload satisfies the same filter locally")
}

func TestRemote_Search(t *testing.T) {
	t.Parallel()

	cols := newFakeCollections()
	cols.add("idx", 2, nil)

	var got *pb.SearchPoints
	points := &fakePoints{searchFunc: func(_ context.Context, in *pb.SearchPoints) (*pb.SearchResponse, error) {
		got = in
		return &pb.SearchResponse{Result: []*pb.ScoredPoint{
			{Id: pointID("b"), Score: 0.5, Payload: map[string]*pb.Value{payloadIDKey: pb.NewValueString("b")}},
			{Id: pointID("a"), Score: 0.5, Payload: map[string]*pb.Value{payloadIDKey: pb.NewValueString("a"), "n": pb.NewValueInt(3)}},
			{Id: pointID("c"), Score: 0.9, Payload: map[string]*pb.Value{payloadIDKey: pb.NewValueString("c")}},
		}}, nil
	}}
	r := newRemoteWithClients(nil, points, cols, time.Second)

	res, err := r.Search(context.Background(), "idx", []float32{1, 0}, 3, Filter{"source": "doc", "chunk_index": 1})
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{res[0].ID, res[1].ID, res[2].ID})
	assert.Equal(t, int64(3), res[1].Metadata["n"])
	assert.NotContains(t, res[1].Metadata, payloadIDKey)

	assert.Equal(t, uint64(3), got.GetLimit())
	assert.Len(t, got.GetFilter().GetMust(), 2)

	_, err = r.Search(context.Background(), "idx", []float32{1}, 3, nil)
	require.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = r.Search(context.Background(), "idx", []float32{1, 0}, 0, nil)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = r.Search(context.Background(), "idx", []float32{1, 0}, 1, Filter{"score": 0.5})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRemote_Timeout(t *testing.T) {
	t.Parallel()

	cols := newFakeCollections()
	cols.add("idx", 2, nil)
	points := &fakePoints{searchFunc: func(ctx context.Context, _ *pb.SearchPoints) (*pb.SearchResponse, error) {
		<-ctx.Done()
		return nil, status.Error(codes.DeadlineExceeded, "context deadline exceeded")
	}}
	r := newRemoteWithClients(nil, points, cols, 20*time.Millisecond)

	_, err := r.Search(context.Background(), "idx", []float32{1, 0}, 1, nil)
	require.ErrorIs(t, err, ErrBackendTimeout)
}

func TestStatusError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code codes.Code
		want error
	}{
		{codes.NotFound, ErrIndexNotFound},
		{codes.AlreadyExists, ErrIndexAlreadyExists},
		{codes.DeadlineExceeded, ErrBackendTimeout},
		{codes.Unavailable, ErrBackendUnavailable},
		{codes.Unauthenticated, ErrBackendUnavailable},
		{codes.InvalidArgument, ErrInvalidArgument},
	}
	for _, tt := range tests {
		err := statusError("op", status.Error(tt.code, "boom"))
		assert.ErrorIs(t, err, tt.want, tt.code.String())
	}
	assert.NoError(t, statusError("op", nil))
}

func TestRemote_CloseWithoutConn(t *testing.T) {
	t.Parallel()
	r := newRemoteWithClients(nil, &fakePoints{}, newFakeCollections(), 0)
	assert.NoError(t, r.Close())
	assert.Equal(t, defaultTimeout, r.timeout)
}
