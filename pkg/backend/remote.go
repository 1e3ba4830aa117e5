package backend

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/stacklok/envector-mcp/pkg/logger"
)

const (
	apiKeyHeader   = "api-key"
	defaultTimeout = 30 * time.Second
	tlsPort        = 443
)

// pointsClient is the subset of the points service the adapter uses.
type pointsClient interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

// collectionsClient is the subset of the collections service the adapter uses.
type collectionsClient interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Get(ctx context.Context, in *pb.GetCollectionInfoRequest, opts ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	CollectionExists(ctx context.Context, in *pb.CollectionExistsRequest, opts ...grpc.CallOption) (*pb.CollectionExistsResponse, error)
}

// RemoteConfig configures the connection to the remote engine.
type RemoteConfig struct {
	// Endpoint is a host, host:port or https:// URL.
	Endpoint string
	// Port is used when Endpoint carries no port.
	Port int

	// AccessToken takes precedence over the key file.
	AccessToken string
	// KeyID names the key file inside KeyPath.
	KeyID   string
	KeyPath string

	// Timeout bounds every call.
	Timeout time.Duration
}

// Remote talks to the engine over gRPC. The connection is shared by all callers.
type Remote struct {
	conn        *grpc.ClientConn
	points      pointsClient
	collections collectionsClient
	timeout     time.Duration
}

var _ Adapter = (*Remote)(nil)

// NewRemote dials the engine and probes it once. Missing credentials and an
// unreachable engine are both returned as errors so startup can abort.
func NewRemote(ctx context.Context, cfg RemoteConfig) (*Remote, error) {
	apiKey, err := loadAPIKey(cfg)
	if err != nil {
		return nil, err
	}

	addr, useTLS, err := resolveAddress(cfg.Endpoint, cfg.Port)
	if err != nil {
		return nil, err
	}

	creds := insecure.NewCredentials()
	if useTLS {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	} else {
		logger.Warnf("Connecting to %s without TLS, the API key is sent in plaintext", addr)
	}

	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(creds),
		grpc.WithUnaryInterceptor(apiKeyInterceptor(apiKey)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", addr, err)
	}

	r := newRemoteWithClients(conn, pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), cfg.Timeout)
	if err := r.probe(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("engine at %s is not reachable: %w", addr, err)
	}

	logger.Infof("Connected to vector engine at %s", addr)
	return r, nil
}

func newRemoteWithClients(conn *grpc.ClientConn, points pointsClient, collections collectionsClient, timeout time.Duration) *Remote {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Remote{conn: conn, points: points, collections: collections, timeout: timeout}
}

// Close releases the connection.
func (r *Remote) Close() error {
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}

func (r *Remote) probe(ctx context.Context) error {
	return r.call(ctx, "probe", func(ctx context.Context) error {
		_, err := r.collections.List(ctx, &pb.ListCollectionsRequest{})
		return err
	})
}

// ListIndexes returns every index with its stored configuration.
func (r *Remote) ListIndexes(ctx context.Context) ([]Index, error) {
	var names []string
	err := r.call(ctx, "list indexes", func(ctx context.Context) error {
		resp, err := r.collections.List(ctx, &pb.ListCollectionsRequest{})
		if err != nil {
			return err
		}
		for _, c := range resp.GetCollections() {
			names = append(names, c.GetName())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	indexes := make([]Index, 0, len(names))
	slices.Sort(names)
	for _, name := range names {
		idx, err := r.DescribeIndex(ctx, name)
		if err != nil {
			// dropped between list and describe
			if errors.Is(err, ErrIndexNotFound) {
				continue
			}
			return nil, err
		}
		indexes = append(indexes, *idx)
	}
	return indexes, nil
}

// DescribeIndex returns the stored configuration of one index.
func (r *Remote) DescribeIndex(ctx context.Context, name string) (*Index, error) {
	var idx *Index
	err := r.call(ctx, "describe index "+name, func(ctx context.Context) error {
		resp, err := r.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: name})
		if err != nil {
			return err
		}
		idx = indexFromInfo(name, resp.GetResult())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return idx, nil
}

// CreateIndex creates a cosine index and records its encryption flags.
func (r *Remote) CreateIndex(ctx context.Context, spec IndexSpec) (*Index, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if spec.EvalMode == "" {
		spec.EvalMode = EvalModeMM
	}

	err := r.call(ctx, "create index "+spec.Name, func(ctx context.Context) error {
		exists, err := r.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: spec.Name})
		if err != nil {
			return err
		}
		if exists.GetResult().GetExists() {
			return fmt.Errorf("%w: %s", ErrIndexAlreadyExists, spec.Name)
		}
		_, err = r.collections.Create(ctx, &pb.CreateCollection{
			CollectionName: spec.Name,
			VectorsConfig: pb.NewVectorsConfig(&pb.VectorParams{
				Size:     uint64(spec.Dimension),
				Distance: pb.Distance_Cosine,
			}),
			Metadata: indexMetadata(spec),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Infof("Created index %s (dimension %d, eval mode %s)", spec.Name, spec.Dimension, spec.EvalMode)
	return &Index{
		Name:           spec.Name,
		Dimension:      spec.Dimension,
		EvalMode:       spec.EvalMode,
		IndexEncrypted: true,
		QueryEncrypted: spec.QueryEncrypted,
	}, nil
}

// Insert writes every record or none of them.
func (r *Remote) Insert(ctx context.Context, index string, records []Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	idx, err := r.DescribeIndex(ctx, index)
	if err != nil {
		return 0, err
	}
	if err := checkDimensions(index, idx.Dimension, records); err != nil {
		return 0, err
	}

	points := make([]*pb.PointStruct, len(records))
	for i, rec := range records {
		id := rec.ID
		if id == "" {
			id = uuid.NewString()
		}
		payload, err := toPayload(id, rec.Metadata)
		if err != nil {
			return 0, fmt.Errorf("%w: record %d: %v", ErrInvalidArgument, i, err)
		}
		points[i] = &pb.PointStruct{
			Id:      pointID(id),
			Vectors: pb.NewVectorsDense(rec.Vector),
			Payload: payload,
		}
	}

	wait := true
	err = r.call(ctx, "insert into "+index, func(ctx context.Context) error {
		_, err := r.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: index,
			Wait:           &wait,
			Points:         points,
		})
		return err
	})
	if err != nil {
		return 0, &InsertError{Index: index, Rejected: allIndices(len(records)), Err: err}
	}

	logger.Debugf("Inserted %d records into %s", len(records), index)
	return len(records), nil
}

// Search returns at most topK hits ordered by descending score, then id.
func (r *Remote) Search(ctx context.Context, index string, query []float32, topK int, filter Filter) ([]SearchResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidArgument, topK)
	}
	idx, err := r.DescribeIndex(ctx, index)
	if err != nil {
		return nil, err
	}
	if err := checkQuery(index, idx.Dimension, query, topK); err != nil {
		return nil, err
	}
	pf, err := toFilter(filter)
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	err = r.call(ctx, "search "+index, func(ctx context.Context) error {
		resp, err := r.points.Search(ctx, &pb.SearchPoints{
			CollectionName: index,
			Vector:         query,
			Filter:         pf,
			Limit:          uint64(topK),
			WithPayload:    pb.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		results = make([]SearchResult, 0, len(resp.GetResult()))
		for _, p := range resp.GetResult() {
			id, meta := fromPayload(p.GetPayload())
			if id == "" {
				id = p.GetId().GetUuid()
			}
			results = append(results, SearchResult{ID: id, Score: p.GetScore(), Metadata: meta})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortResults(results)
	return results, nil
}

// call runs fn under the adapter timeout and maps gRPC status codes onto the
// package errors.
func (r *Remote) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return runWithTimeout(ctx, r.timeout, op, func(ctx context.Context) error {
		return statusError(op, fn(ctx))
	})
}

func statusError(op string, err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%s: %w", op, err)
	}
	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("%w: %s: %s", ErrIndexNotFound, op, st.Message())
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %s: %s", ErrIndexAlreadyExists, op, st.Message())
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s: %s", ErrBackendTimeout, op, st.Message())
	case codes.Unavailable, codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %s: %s", ErrBackendUnavailable, op, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s: %s", ErrInvalidArgument, op, st.Message())
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if apiKey != "" {
			ctx = metadata.AppendToOutgoingContext(ctx, apiKeyHeader, apiKey)
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// loadAPIKey prefers the access token and falls back to <KeyPath>/<KeyID>.
func loadAPIKey(cfg RemoteConfig) (string, error) {
	if cfg.AccessToken != "" {
		return cfg.AccessToken, nil
	}
	if cfg.KeyID == "" || cfg.KeyPath == "" {
		return "", fmt.Errorf("%w: set an access token or both key id and key path", ErrMissingCredentials)
	}

	path := filepath.Join(cfg.KeyPath, cfg.KeyID)
	data, err := os.ReadFile(path) // #nosec G304 - path comes from operator configuration
	if err != nil {
		return "", fmt.Errorf("%w: reading key file %s: %v", ErrMissingCredentials, path, err)
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", fmt.Errorf("%w: key file %s is empty", ErrMissingCredentials, path)
	}
	return key, nil
}

// resolveAddress returns the dial target and whether to use TLS.
func resolveAddress(endpoint string, port int) (string, bool, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", false, fmt.Errorf("%w: endpoint is required", ErrInvalidArgument)
	}

	forceTLS := false
	if rest, ok := strings.CutPrefix(endpoint, "https://"); ok {
		endpoint, forceTLS = strings.TrimSuffix(rest, "/"), true
		if port == 0 || !strings.Contains(endpoint, ":") {
			port = tlsPort
		}
	}

	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		if port <= 0 {
			return "", false, fmt.Errorf("%w: no port for endpoint %q", ErrInvalidArgument, endpoint)
		}
		host, portStr = endpoint, strconv.Itoa(port)
	}
	p, err := strconv.Atoi(portStr)
	if err != nil || p <= 0 || p > 65535 {
		return "", false, fmt.Errorf("%w: invalid port in endpoint %q", ErrInvalidArgument, endpoint)
	}
	return net.JoinHostPort(host, portStr), forceTLS || p == tlsPort, nil
}
