package state

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type countingManager struct {
	mu       sync.Mutex
	records  map[string]*ProxyRecord
	provider map[string][]byte
}

func newCountingManager() *countingManager {
	return &countingManager{
		records:  make(map[string]*ProxyRecord),
		provider: make(map[string][]byte),
	}
}

func (m *countingManager) SaveProxyRecord(ctx context.Context, record *ProxyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.ProxyID] = record
	return nil
}

func (m *countingManager) LoadProxyRecord(ctx context.Context, proxyID string) (*ProxyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[proxyID], nil
}

func (m *countingManager) SaveProviderRecord(ctx context.Context, proxyID string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.provider[proxyID] = payload
	return nil
}

func (m *countingManager) LoadProviderRecord(ctx context.Context, proxyID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.provider[proxyID], nil
}

func TestRecorder(t *testing.T) {
	t.Run("records drain before close returns", func(t *testing.T) {
		manager := newCountingManager()
		recorder := NewRecorder(manager, 2, 16, zaptest.NewLogger(t).Sugar())

		recorder.Record(testRecord("proxy-1"), []byte(`{"id":"chatcmpl-1"}`))
		recorder.Record(testRecord("proxy-2"), nil)
		recorder.Close()

		loaded, err := manager.LoadProxyRecord(context.Background(), "proxy-1")
		require.NoError(t, err)
		assert.NotNil(t, loaded)

		payload, err := manager.LoadProviderRecord(context.Background(), "proxy-1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"chatcmpl-1"}`, string(payload))

		loaded, err = manager.LoadProxyRecord(context.Background(), "proxy-2")
		require.NoError(t, err)
		assert.NotNil(t, loaded)
	})

	t.Run("close is idempotent", func(t *testing.T) {
		recorder := NewRecorder(newCountingManager(), 1, 1, zaptest.NewLogger(t).Sugar())
		recorder.Close()
		assert.NotPanics(t, recorder.Close)
	})

	t.Run("full queue drops instead of blocking", func(t *testing.T) {
		manager := newCountingManager()
		recorder := NewRecorder(manager, 1, 1, zaptest.NewLogger(t).Sugar())
		defer recorder.Close()

		done := make(chan struct{})
		go func() {
			for i := 0; i < 100; i++ {
				recorder.Record(testRecord("proxy-flood"), nil)
			}
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("Record blocked on a full queue")
		}
	})
}
