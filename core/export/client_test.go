package export_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/examreg/core/export"
)

// chunkServer serves the export-chunk endpoint from a Streamer, failing the calls listed in failOn (1-based).
func chunkServer(t *testing.T, s *export.Streamer, failOn map[int32]int) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/v1/students/export-chunk", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		if code, ok := failOn[n]; ok {
			http.Error(w, `{"error":"boom"}`, code)
			return
		}

		q := r.URL.Query()
		filter, err := export.NewFilter(q.Get("search"), q.Get("lga"), q.Get("schoolCode"), q.Get("registrationType"))
		require.NoError(t, err)

		var out interface{}
		if q.Get("countOnly") == "true" {
			out, err = s.Count(r.Context(), filter)
		} else {
			table, terr := export.ParseTable(q.Get("table"))
			require.NoError(t, terr)
			out, err = s.Chunk(r.Context(), table, filter, q.Get("cursor"))
		}
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestClient_Export(t *testing.T) {
	f := setup(t, 2)
	f.seedAll(t)

	var streamed bytes.Buffer
	_, err := f.streamer.Stream(context.Background(), &streamed, export.Filter{})
	require.NoError(t, err)

	tests := []struct {
		name   string
		failOn map[int32]int
	}{
		{name: "no failures"},
		{name: "transient failures are retried", failOn: map[int32]int{1: http.StatusBadGateway, 3: http.StatusInternalServerError, 4: http.StatusTooManyRequests}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := chunkServer(t, f.streamer, tt.failOn)
			client := export.NewClient(srv.URL+"/", "secret", srv.Client())
			client.RetryBase = time.Millisecond
			var progress [][2]int
			client.Progress = func(exported, total int) { progress = append(progress, [2]int{exported, total}) }

			var buf bytes.Buffer
			n, err := client.Export(context.Background(), &buf, export.Filter{})
			require.NoError(t, err)
			assert.Equal(t, 6, n)
			assert.Equal(t, streamed.String(), buf.String())
			// regular: 2+1, late: 1, post: 2
			assert.Equal(t, [][2]int{{2, 6}, {3, 6}, {4, 6}, {6, 6}, {6, 6}}, progress)
		})
	}
}

func TestClient_Export_filters(t *testing.T) {
	f := setup(t, 2)
	f.seedAll(t)
	srv, _ := chunkServer(t, f.streamer, nil)
	client := export.NewClient(srv.URL, "secret", nil)

	filter, err := export.NewFilter("", "102", "", "post")
	require.NoError(t, err)
	var buf bytes.Buffer
	n, err := client.Export(context.Background(), &buf, filter)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, readCSV(t, buf.Bytes()), 3)
}

func TestClient_Export_exhausted(t *testing.T) {
	f := setup(t, 2)
	f.seedAll(t)
	// count + first chunk succeed, then the second chunk fails five times in a row
	failOn := map[int32]int{}
	for i := int32(3); i <= 7; i++ {
		failOn[i] = http.StatusServiceUnavailable
	}
	srv, calls := chunkServer(t, f.streamer, failOn)
	client := export.NewClient(srv.URL, "secret", nil)
	client.RetryBase = time.Millisecond

	var buf bytes.Buffer
	n, err := client.Export(context.Background(), &buf, export.Filter{})
	require.Error(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int32(7), atomic.LoadInt32(calls))

	var ferr *export.ExportFetchError
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, export.TableRegular, ferr.Table)
	assert.Equal(t, 2, ferr.Exported)
	assert.Equal(t, 6, ferr.Total)
	assert.Contains(t, err.Error(), "2/6")
	// rows received before the failure are kept
	assert.Len(t, readCSV(t, buf.Bytes()), 3)
}

func TestClient_Export_clientErrorNotRetried(t *testing.T) {
	f := setup(t, 2)
	srv, calls := chunkServer(t, f.streamer, map[int32]int{1: http.StatusUnauthorized})
	client := export.NewClient(srv.URL, "secret", nil)
	client.RetryBase = time.Millisecond

	_, err := client.Export(context.Background(), new(bytes.Buffer), export.Filter{})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	assert.Contains(t, err.Error(), "401")
}
