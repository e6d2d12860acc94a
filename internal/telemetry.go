package internal

import (
	"context"
	"strconv"
	"sync"
)

// TelemetryEmitter receives named measurements. The default emitter discards them.
type TelemetryEmitter func(ctx context.Context, name string, labels map[string]string, value any)

var (
	teleMu   sync.RWMutex
	teleImpl TelemetryEmitter = func(context.Context, string, map[string]string, any) {}
)

// RegisterTelemetryEmitter installs fn as the process-wide emitter. nil restores the no-op.
func RegisterTelemetryEmitter(fn TelemetryEmitter) {
	teleMu.Lock()
	defer teleMu.Unlock()
	if fn == nil {
		teleImpl = func(context.Context, string, map[string]string, any) {}
		return
	}
	teleImpl = fn
}

func emit(ctx context.Context, name string, labels map[string]string, value any) {
	teleMu.RLock()
	fn := teleImpl
	teleMu.RUnlock()
	fn(ctx, name, labels, value)
}

// EmitStatementLatency records how long one store statement took, in milliseconds.
// kind is "ddl", "exec" or "query".
func EmitStatementLatency(ctx context.Context, kind string, ms int64, failed bool) {
	emit(ctx, "dynaform_statement_latency_ms", map[string]string{
		"kind":   kind,
		"failed": strconv.FormatBool(failed),
	}, ms)
}

// EmitRecordOperation counts one record engine call.
func EmitRecordOperation(ctx context.Context, collection, op string, failed bool) {
	emit(ctx, "dynaform_record_operations_total", map[string]string{
		"collection": collection,
		"op":         op,
		"failed":     strconv.FormatBool(failed),
	}, int64(1))
}

// EmitSagaOutcome records how a schema saga finished.
func EmitSagaOutcome(ctx context.Context, saga string, state SagaState) {
	emit(ctx, "dynaform_saga_outcome_total", map[string]string{
		"saga":  saga,
		"state": string(state),
	}, int64(1))
}
