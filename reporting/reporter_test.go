package reporting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FrenchMajesty/turbo-retry/utils/logger"
	"github.com/FrenchMajesty/turbo-retry/utils/retry"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noWait(ctx context.Context, delay time.Duration) error {
	return ctx.Err()
}

func TestNewReport(t *testing.T) {
	report := NewReport(errors.New("boom"), "Failed to execute generate after 4 attempts", "api")

	assert.NotEmpty(t, report.ID)
	assert.Equal(t, "boom", report.Message)
	assert.Equal(t, "Failed to execute generate after 4 attempts", report.Context)
	assert.Equal(t, "api", report.Source)
	assert.WithinDuration(t, time.Now(), report.Timestamp, time.Minute)

	assert.Equal(t, "<nil>", NewReport(nil, "", "").Message)
}

func TestMultiReporter(t *testing.T) {
	var calls []string
	first := ReporterFunc(func(ctx context.Context, err error, context string) {
		calls = append(calls, "first:"+context)
	})
	second := ReporterFunc(func(ctx context.Context, err error, context string) {
		calls = append(calls, "second:"+context)
	})

	multi := NewMultiReporter(first, nil, second)
	assert.Equal(t, 2, multi.Len())

	multi.Report(context.Background(), errors.New("boom"), "ctx")
	assert.Equal(t, []string{"first:ctx", "second:ctx"}, calls)

	// Nop must be callable
	Nop.Report(context.Background(), errors.New("ignored"), "")
}

func TestLogReporter(t *testing.T) {
	t.Run("plain logger", func(t *testing.T) {
		var buf bytes.Buffer
		NewLogReporter(logger.NewWriterLogger(&buf)).
			Report(context.Background(), errors.New("boom"), "Failed to execute upload after 2 attempts")

		assert.Contains(t, buf.String(), "Failed to execute upload after 2 attempts")
		assert.Contains(t, buf.String(), "boom")
	})

	t.Run("structured logger", func(t *testing.T) {
		var buf bytes.Buffer
		l := logger.NewSlogLogger(&buf, logger.SlogOptions{JSON: true})
		NewLogReporter(l).Report(context.Background(), errors.New("boom"), "ctx")

		var record map[string]any
		require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record))
		assert.Equal(t, "ERROR", record["level"])
		assert.Equal(t, "ctx", record["context"])
		assert.Equal(t, "boom", record["error"])
	})

	t.Run("nil logger", func(t *testing.T) {
		assert.NotPanics(t, func() {
			NewLogReporter(nil).Report(context.Background(), errors.New("boom"), "ctx")
		})
	})
}

func TestHTTPReporter_Delivers(t *testing.T) {
	var received Report
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	config := DefaultHTTPConfig(server.URL)
	config.Tags = map[string]string{"env": "test"}
	reporter, err := NewHTTPReporter(config, nil, retry.WithWaiter(noWait))
	require.NoError(t, err)

	reporter.Report(context.Background(), errors.New("generation failed"), "Failed to execute generate after 4 attempts")
	require.NoError(t, reporter.Close())

	assert.Equal(t, "generation failed", received.Message)
	assert.Equal(t, "Failed to execute generate after 4 attempts", received.Context)
	assert.Equal(t, "turbo-retry", received.Source)
	assert.Equal(t, "test", received.Tags["env"])
	assert.NotEmpty(t, received.ID)
}

func TestHTTPReporter_RetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	reporter, err := NewHTTPReporter(DefaultHTTPConfig(server.URL), nil, retry.WithWaiter(noWait))
	require.NoError(t, err)

	err = reporter.Send(context.Background(), NewReport(errors.New("boom"), "ctx", ""))
	assert.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())
}

func TestHTTPReporter_GivesUpAndLogs(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "collector down", http.StatusInternalServerError)
	}))
	defer server.Close()

	var buf bytes.Buffer
	reporter, err := NewHTTPReporter(DefaultHTTPConfig(server.URL), logger.NewWriterLogger(&buf), retry.WithWaiter(noWait))
	require.NoError(t, err)

	reporter.Report(context.Background(), errors.New("boom"), "ctx")
	require.NoError(t, reporter.Close())

	assert.Equal(t, int32(3), hits.Load(), "two retries after the first attempt")
	assert.Contains(t, buf.String(), "Failed to deliver error report")
	assert.Contains(t, buf.String(), "collector down")
}

func TestHTTPReporter_ReportDoesNotWaitForDelivery(t *testing.T) {
	release := make(chan struct{})
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	reporter, err := NewHTTPReporter(DefaultHTTPConfig(server.URL), nil, retry.WithWaiter(noWait))
	require.NoError(t, err)

	start := time.Now()
	reporter.Report(context.Background(), errors.New("boom"), "ctx")
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Zero(t, hits.Load())

	close(release)
	require.NoError(t, reporter.Close())
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPReporter_DeliveryOutlivesCallerContext(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	reporter, err := NewHTTPReporter(DefaultHTTPConfig(server.URL), nil, retry.WithWaiter(noWait))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	reporter.Report(ctx, errors.New("boom"), "ctx")
	cancel()

	require.NoError(t, reporter.Close())
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPReporter_DropsWhenFullOrClosed(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	var buf safeBuffer
	config := DefaultHTTPConfig(server.URL)
	config.QueueSize = 1
	reporter, err := NewHTTPReporter(config, logger.NewWriterLogger(&buf), retry.WithWaiter(noWait))
	require.NoError(t, err)

	// one report in flight, one queued, the rest dropped
	for i := 0; i < 5; i++ {
		reporter.Report(context.Background(), errors.New("boom"), "ctx")
		time.Sleep(5 * time.Millisecond)
	}
	assert.Contains(t, buf.String(), "delivery queue full")

	close(release)
	require.NoError(t, reporter.Close())
	require.NoError(t, reporter.Close())

	reporter.Report(context.Background(), errors.New("late"), "ctx")
	assert.Contains(t, buf.String(), "reporter closed")
}

// safeBuffer is a bytes.Buffer safe for the reporter's worker and the test
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestHTTPReporter_ConcurrentReportsDoNotSupersede(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(10 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	reporter, err := NewHTTPReporter(DefaultHTTPConfig(server.URL), nil, retry.WithWaiter(noWait))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = reporter.Send(context.Background(), NewReport(errors.New("boom"), "ctx", ""))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(5), hits.Load())
}

func TestNewHTTPReporter_InvalidConfig(t *testing.T) {
	_, err := NewHTTPReporter(HTTPConfig{}, nil)
	assert.Error(t, err)

	config := DefaultHTTPConfig("http://localhost")
	config.Retry.Delay = 0
	_, err = NewHTTPReporter(config, nil)
	assert.Error(t, err)
}

// memoryList is an in-memory ListStore
type memoryList struct {
	mu      sync.Mutex
	lists   map[string][]string
	pushErr error
	trimErr error
	trimmed int
}

func newMemoryList() *memoryList {
	return &memoryList{lists: make(map[string][]string)}
}

func (m *memoryList) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()

	cmd := redis.NewIntCmd(ctx)
	if m.pushErr != nil {
		cmd.SetErr(m.pushErr)
		return cmd
	}
	for _, v := range values {
		var s string
		switch v := v.(type) {
		case []byte:
			s = string(v)
		case string:
			s = v
		}
		m.lists[key] = append([]string{s}, m.lists[key]...)
	}
	cmd.SetVal(int64(len(m.lists[key])))
	return cmd
}

func (m *memoryList) LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()

	cmd := redis.NewStatusCmd(ctx)
	if m.trimErr != nil {
		cmd.SetErr(m.trimErr)
		return cmd
	}
	m.trimmed++
	list := m.lists[key]
	if stop+1 < int64(len(list)) {
		m.lists[key] = list[start : stop+1]
	}
	cmd.SetVal("OK")
	return cmd
}

func (m *memoryList) LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd {
	m.mu.Lock()
	defer m.mu.Unlock()

	cmd := redis.NewStringSliceCmd(ctx)
	list := m.lists[key]
	if stop+1 < int64(len(list)) {
		list = list[start : stop+1]
	}
	cmd.SetVal(append([]string(nil), list...))
	return cmd
}

func TestRedisReporter_StoresNewestFirst(t *testing.T) {
	store := newMemoryList()
	reporter := NewRedisReporter(store, RedisConfig{Key: "errors", Source: "api"}, nil)

	reporter.Report(context.Background(), errors.New("first"), "Failed to execute a after 1 attempts")
	reporter.Report(context.Background(), errors.New("second"), "Failed to execute b after 1 attempts")

	reports, err := reporter.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "second", reports[0].Message)
	assert.Equal(t, "first", reports[1].Message)
	assert.Equal(t, "api", reports[0].Source)
	assert.Equal(t, 2, store.trimmed)
}

func TestRedisReporter_CapsEntries(t *testing.T) {
	store := newMemoryList()
	reporter := NewRedisReporter(store, RedisConfig{MaxEntries: 3}, nil)

	for i := 0; i < 5; i++ {
		reporter.Report(context.Background(), errors.New("boom"), "ctx")
	}

	assert.Len(t, store.lists["turbo_retry:errors"], 3)

	reports, err := reporter.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, reports, 3)
}

func TestRedisReporter_DefaultCap(t *testing.T) {
	reporter := NewRedisReporter(newMemoryList(), RedisConfig{}, nil)
	assert.Equal(t, int64(DefaultMaxEntries), reporter.maxEntries)
	assert.Equal(t, "turbo_retry:errors", reporter.key)
}

func TestRedisReporter_StoreErrors(t *testing.T) {
	store := newMemoryList()
	reporter := NewRedisReporter(store, RedisConfig{}, nil)

	store.pushErr = errors.New("connection refused")
	err := reporter.Store(context.Background(), NewReport(errors.New("boom"), "ctx", ""))
	assert.ErrorContains(t, err, "lpush failed")

	store.pushErr = nil
	store.trimErr = errors.New("readonly")
	err = reporter.Store(context.Background(), NewReport(errors.New("boom"), "ctx", ""))
	assert.ErrorContains(t, err, "ltrim failed")

	var buf bytes.Buffer
	reporter = NewRedisReporter(store, RedisConfig{}, logger.NewWriterLogger(&buf))
	reporter.Report(context.Background(), errors.New("boom"), "ctx")
	assert.Contains(t, buf.String(), "Failed to store error report")
}

func TestRedisReporter_SkipsMalformedEntries(t *testing.T) {
	store := newMemoryList()
	store.lists["turbo_retry:errors"] = []string{"not json"}
	reporter := NewRedisReporter(store, RedisConfig{}, nil)
	reporter.Report(context.Background(), errors.New("boom"), "ctx")

	reports, err := reporter.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "boom", reports[0].Message)
}

func TestRedisReporter_AsExecutorReporter(t *testing.T) {
	store := newMemoryList()
	reporter := NewRedisReporter(store, RedisConfig{}, nil)

	executor, err := retry.NewExecutor(
		retry.Config{MaxRetries: 1, Delay: time.Millisecond, BackoffMultiplier: 2},
		retry.WithReporter(reporter),
		retry.WithWaiter(noWait),
	)
	require.NoError(t, err)

	err = executor.Do(context.Background(), "sync", func(ctx context.Context) error {
		return errors.New("still failing")
	})
	require.ErrorIs(t, err, retry.ErrRetryExhausted)

	reports, err := reporter.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "still failing", reports[0].Message)
	assert.Equal(t, "Failed to execute sync after 2 attempts", reports[0].Context)
}
