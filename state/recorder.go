package state

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type recorderJob struct {
	record   *ProxyRecord
	provider []byte
}

// Recorder is the best-effort analytics sink: records are queued and written
// by background workers so the request path never blocks on persistence.
// Writes that fail are logged with the proxy id and dropped; there are no
// in-line retries.
type Recorder struct {
	manager Manager
	logger  *zap.SugaredLogger
	queue   chan recorderJob
	wg      sync.WaitGroup
	once    sync.Once
}

func NewRecorder(manager Manager, workers int, queueSize int, logger *zap.SugaredLogger) *Recorder {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 1024
	}

	r := &Recorder{
		manager: manager,
		logger:  logger,
		queue:   make(chan recorderJob, queueSize),
	}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.run()
	}
	return r
}

// Record enqueues an analytics row and, optionally, the provider's full
// reply. Never blocks: on a full queue the job is dropped and logged with
// enough context to reconstruct the request.
func (r *Recorder) Record(record *ProxyRecord, providerPayload []byte) {
	select {
	case r.queue <- recorderJob{record: record, provider: providerPayload}:
	default:
		r.logger.Warnw("Analytics queue full, dropping record",
			"proxy_id", record.ProxyID,
			"tenant_scope", record.TenantScope,
			"status_code", record.StatusCode,
			"error_code", record.ErrorCode)
	}
}

// Close drains the queue and stops the workers.
func (r *Recorder) Close() {
	r.once.Do(func() { close(r.queue) })
	r.wg.Wait()
}

func (r *Recorder) run() {
	defer r.wg.Done()

	for job := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.manager.SaveProxyRecord(ctx, job.record); err != nil {
			r.logger.Warnw("Failed to persist proxy record",
				"proxy_id", job.record.ProxyID,
				"tenant_scope", job.record.TenantScope,
				"error", err)
		}
		if job.provider != nil {
			if err := r.manager.SaveProviderRecord(ctx, job.record.ProxyID, job.provider); err != nil {
				r.logger.Warnw("Failed to persist provider record",
					"proxy_id", job.record.ProxyID,
					"error", err)
			}
		}
		cancel()
	}
}
