package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{"default", DefaultConfig(), ""},
		{"sampling too high", Config{SamplingRate: 1.5}, "sampling rate"},
		{"negative sampling", Config{SamplingRate: -0.1}, "sampling rate"},
		{"headers without endpoint", Config{Headers: map[string]string{"a": "b"}}, "no endpoint"},
		{"bad header value", Config{Endpoint: "localhost:4318", Headers: map[string]string{"x-key": "a\r\nb"}}, "OTLP header"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewProvider_Disabled(t *testing.T) {
	t.Parallel()

	p, err := NewProvider(context.Background(), DefaultConfig())
	require.NoError(t, err)
	assert.Nil(t, p.PrometheusHandler())
	assert.IsType(t, metricnoop.MeterProvider{}, p.MeterProvider())
	assert.IsType(t, tracenoop.TracerProvider{}, p.TracerProvider())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProvider_Prometheus(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	config.Enabled = true
	config.IncludeRuntimeMetrics = true
	p, err := NewProvider(context.Background(), config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	require.NotNil(t, p.PrometheusHandler())

	counter, err := p.MeterProvider().Meter("test").Int64Counter("test_requests")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	rec := httptest.NewRecorder()
	p.PrometheusHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "test_requests_total")
	assert.Contains(t, body, "go_goroutines")
}

func TestNewProvider_OTLP(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	config.Endpoint = "localhost:4318"
	config.Insecure = true
	p, err := NewProvider(context.Background(), config)
	require.NoError(t, err)
	t.Cleanup(func() {
		// nothing listens on the endpoint, so the final flush is cut short
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		_ = p.Shutdown(ctx)
	})

	assert.Nil(t, p.PrometheusHandler())
	assert.IsType(t, &sdktrace.TracerProvider{}, p.TracerProvider())
}
