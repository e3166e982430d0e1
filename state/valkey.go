package state

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/valkey-io/valkey-go"
)

// ValkeyManager persists records in Valkey so they survive process restarts
// and are visible across replicas.
type ValkeyManager struct {
	client    valkey.Client
	retention time.Duration
}

func NewValkeyManager(client valkey.Client, retention time.Duration) *ValkeyManager {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &ValkeyManager{client: client, retention: retention}
}

func proxyRecordKey(proxyID string) string {
	return fmt.Sprintf("tokengard:log:%s", proxyID)
}

func providerRecordKey(proxyID string) string {
	return fmt.Sprintf("tokengard:provider:%s", proxyID)
}

func (r *ValkeyManager) SaveProxyRecord(ctx context.Context, record *ProxyRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal proxy record: %v", err)
	}
	return r.client.Do(
		ctx, r.client.B().Set().
			Key(proxyRecordKey(record.ProxyID)).
			Value(valkey.BinaryString(payload)).
			Ex(r.retention).
			Build(),
	).Error()
}

func (r *ValkeyManager) LoadProxyRecord(ctx context.Context, proxyID string) (*ProxyRecord, error) {
	resp := r.client.Do(ctx, r.client.B().Get().Key(proxyRecordKey(proxyID)).Build())
	if err := resp.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, nil
		}
		return nil, err
	}

	payload, err := resp.AsBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to read proxy record: %v", err)
	}

	var record ProxyRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal proxy record: %v", err)
	}
	return &record, nil
}

func (r *ValkeyManager) SaveProviderRecord(ctx context.Context, proxyID string, payload []byte) error {
	return r.client.Do(
		ctx, r.client.B().Set().
			Key(providerRecordKey(proxyID)).
			Value(valkey.BinaryString(payload)).
			Ex(r.retention).
			Build(),
	).Error()
}

func (r *ValkeyManager) LoadProviderRecord(ctx context.Context, proxyID string) ([]byte, error) {
	resp := r.client.Do(ctx, r.client.B().Get().Key(providerRecordKey(proxyID)).Build())
	if err := resp.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, nil
		}
		return nil, err
	}
	return resp.AsBytes()
}
