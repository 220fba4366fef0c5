package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRIPEstat serves bgp-state responses keyed by the timestamp parameter.
type fakeRIPEstat struct {
	mu       sync.Mutex
	states   map[string]string
	statuses map[string]int
	requests []string
}

func newFakeRIPEstat(t *testing.T) (*fakeRIPEstat, *httptest.Server) {
	t.Helper()
	f := &fakeRIPEstat{states: map[string]string{}, statuses: map[string]int{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeRIPEstat) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ts := r.URL.Query().Get("timestamp")
	f.requests = append(f.requests, ts)

	if code, ok := f.statuses[ts]; ok {
		w.WriteHeader(code)
		return
	}
	routes, ok := f.states[ts]
	if !ok {
		routes = "[]"
	}
	fmt.Fprintf(w, `{"status": "ok", "data": {"resource": %q, "query_time": %q, "bgp_state": %s}}`,
		r.URL.Query().Get("resource"), ts, routes)
}

func (f *fakeRIPEstat) requested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

type result struct {
	code   int
	stdout string
	stderr string
}

func runWith(t *testing.T, vars map[string]string, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), environment{
		args:   args,
		stdout: &stdout,
		stderr: &stderr,
		getenv: func(k string) string { return vars[k] },
		clock:  clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 14, 37, 0, 0, time.Local)),
	})
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func TestRun(t *testing.T) {
	t.Parallel()

	const (
		thenTS = "2024-03-01T08:00"
		nowTS  = "2024-03-01T14:37"
	)

	t.Run("changed path is printed", func(t *testing.T) {
		t.Parallel()

		f, srv := newFakeRIPEstat(t)
		f.states[thenTS] = `[{"source_id": 1, "path": [100, 200, 300]}]`
		f.states[nowTS] = `[{"source_id": 1, "path": [100, 250, 300]}]`

		res := runWith(t, nil, "-n", "1", "--base-url", srv.URL+"/data/", "193.0.14.0/24")
		require.Equal(t, exitOK, res.code, res.stderr)

		want := fmt.Sprintf("%35s --> %35s\n", "100 200 300", "100 250 300")
		assert.Equal(t, want, res.stdout)
		assert.Equal(t, []string{thenTS, nowTS}, f.requested())
	})

	t.Run("identical paths print nothing", func(t *testing.T) {
		t.Parallel()

		f, srv := newFakeRIPEstat(t)
		f.states[thenTS] = `[{"source_id": 1, "path": [100, 200, 300]}]`
		f.states[nowTS] = `[{"source_id": 1, "path": [100, 200, 300]}]`

		res := runWith(t, nil, "-n", "1", "--base-url", srv.URL+"/data/", "193.0.14.0/24")
		assert.Equal(t, exitOK, res.code)
		assert.Empty(t, res.stdout)
		assert.NotContains(t, res.stderr, "unavailable")
	})

	t.Run("sources on one side only print nothing", func(t *testing.T) {
		t.Parallel()

		f, srv := newFakeRIPEstat(t)
		f.states[thenTS] = `[{"source_id": "00-195.66.224.175", "path": [1, 2]}]`
		f.states[nowTS] = `[{"source_id": "01-195.66.225.1", "path": [3, 4]}]`

		res := runWith(t, nil, "-n", "1", "--base-url", srv.URL+"/data/", "193.0.14.0/24")
		assert.Equal(t, exitOK, res.code)
		assert.Empty(t, res.stdout)
	})

	t.Run("no data is not fatal and is called out", func(t *testing.T) {
		t.Parallel()

		f, srv := newFakeRIPEstat(t)
		f.statuses[thenTS] = http.StatusServiceUnavailable
		f.states[nowTS] = `[{"source_id": 1, "path": [100, 250, 300]}]`

		res := runWith(t, nil, "-n", "1", "--base-url", srv.URL+"/data/", "193.0.14.0/24")
		assert.Equal(t, exitOK, res.code)
		assert.Empty(t, res.stdout)
		assert.Contains(t, res.stderr, "no data for snapshot")
		assert.Contains(t, res.stderr, "snapshot data was unavailable")
		assert.Len(t, f.requested(), 2)
	})

	t.Run("base url from environment", func(t *testing.T) {
		t.Parallel()

		f, srv := newFakeRIPEstat(t)
		f.states[thenTS] = `[{"source_id": 1, "path": [1]}]`
		f.states[nowTS] = `[{"source_id": 1, "path": [2]}]`

		res := runWith(t, map[string]string{"RIPESTAT_BASE_URL": srv.URL + "/data/"}, "-n", "1", "193.0.14.0/24")
		assert.Equal(t, exitOK, res.code, res.stderr)
		assert.Contains(t, res.stdout, "-->")
	})

	t.Run("default lookback reaches back to midnight", func(t *testing.T) {
		t.Parallel()

		f, srv := newFakeRIPEstat(t)

		res := runWith(t, nil, "--base-url", srv.URL+"/data/", "2001:7fd::/32")
		assert.Equal(t, exitOK, res.code, res.stderr)
		assert.Equal(t, []string{"2024-03-01T00:00", nowTS}, f.requested())
	})

	t.Run("invalid target prints help and makes no requests", func(t *testing.T) {
		t.Parallel()

		for _, tgt := range []string{"193.0.14.0", "not-an-ip/24", "193.0.14.129/24"} {
			f, srv := newFakeRIPEstat(t)

			res := runWith(t, nil, "--base-url", srv.URL+"/data/", tgt)
			assert.Equal(t, exitFailure, res.code, tgt)
			assert.Empty(t, res.stdout)
			assert.Contains(t, res.stderr, "invalid target")
			assert.Contains(t, res.stderr, "Usage: compare-aspaths")
			assert.Empty(t, f.requested())
		}
	})

	t.Run("missing target", func(t *testing.T) {
		t.Parallel()

		res := runWith(t, nil)
		assert.Equal(t, exitFailure, res.code)
		assert.Contains(t, res.stderr, "Usage: compare-aspaths")
	})

	t.Run("non-integer lookback", func(t *testing.T) {
		t.Parallel()

		res := runWith(t, nil, "-n", "three", "193.0.14.0/24")
		assert.Equal(t, exitBadUsage, res.code)
		assert.Contains(t, res.stderr, "invalid argument")
	})

	t.Run("unknown options are ignored", func(t *testing.T) {
		t.Parallel()

		f, srv := newFakeRIPEstat(t)
		f.states[thenTS] = `[{"source_id": 1, "path": [1]}]`
		f.states[nowTS] = `[{"source_id": 1, "path": [2]}]`

		res := runWith(t, nil, "--unknown", "-n", "1", "--colour=always", "--base-url", srv.URL+"/data/", "193.0.14.0/24")
		require.Equal(t, exitOK, res.code, res.stderr)
		assert.Equal(t, fmt.Sprintf("%35s --> %35s\n", "1", "2"), res.stdout)
		assert.Equal(t, []string{thenTS, nowTS}, f.requested())
	})

	t.Run("huge lookback clamps to midnight", func(t *testing.T) {
		t.Parallel()

		f, srv := newFakeRIPEstat(t)

		res := runWith(t, nil, "-n", "100000000", "--base-url", srv.URL+"/data/", "193.0.14.0/24")
		assert.Equal(t, exitOK, res.code, res.stderr)
		assert.Equal(t, []string{"2024-03-01T00:00", nowTS}, f.requested())
	})

	t.Run("netmask target", func(t *testing.T) {
		t.Parallel()

		f, srv := newFakeRIPEstat(t)

		res := runWith(t, nil, "-n", "1", "--base-url", srv.URL+"/data/", "193.0.14.0/255.255.255.0")
		assert.Equal(t, exitOK, res.code, res.stderr)
		assert.Len(t, f.requested(), 2)
	})

	t.Run("zero lookback is out of range", func(t *testing.T) {
		t.Parallel()

		f, srv := newFakeRIPEstat(t)

		res := runWith(t, nil, "-n", "0", "--base-url", srv.URL+"/data/", "193.0.14.0/24")
		assert.Equal(t, exitFailure, res.code)
		assert.Contains(t, res.stderr, "dump time out of range")
		assert.Empty(t, f.requested())
	})

	t.Run("help", func(t *testing.T) {
		t.Parallel()

		res := runWith(t, nil, "--help")
		assert.Equal(t, exitOK, res.code)
		assert.Contains(t, res.stderr, "--dumps-back")
		assert.Contains(t, res.stderr, "compare-aspaths -n 5 193.0.14.0/24")
	})

	t.Run("version", func(t *testing.T) {
		t.Parallel()

		res := runWith(t, nil, "--version")
		assert.Equal(t, exitOK, res.code)
		assert.True(t, strings.HasPrefix(res.stdout, "compare-aspaths dev"))
	})

	t.Run("metrics textfile", func(t *testing.T) {
		t.Parallel()

		f, srv := newFakeRIPEstat(t)
		f.states[thenTS] = `[{"source_id": 1, "path": [1]}, {"source_id": 2, "path": [2]}]`
		f.states[nowTS] = `[{"source_id": 1, "path": [9]}, {"source_id": 2, "path": [2]}]`

		path := filepath.Join(t.TempDir(), "compare_aspaths.prom")
		res := runWith(t, nil, "-n", "1", "--base-url", srv.URL+"/data/", "--metrics-textfile", path, "193.0.14.0/24")
		require.Equal(t, exitOK, res.code, res.stderr)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "compare_aspaths_changed_sources 1")
		assert.Contains(t, string(data), `compare_aspaths_snapshot_sources{snapshot="then"} 2`)
		assert.Contains(t, string(data), `compare_aspaths_ripestat_requests_total{code="200",data_call="bgp-state"} 2`)
		assert.Contains(t, string(data), "compare_aspaths_last_run_success 1")
	})

	t.Run("transport failure is fatal", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		res := runWith(t, nil, "-n", "1", "--base-url", url+"/data/", "193.0.14.0/24")
		assert.Equal(t, exitFailure, res.code)
		assert.Contains(t, res.stderr, "failed to fetch then snapshot")
	})
}
