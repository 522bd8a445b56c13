package context

import "context"

type ContextKey string

var (
	RequestIDKey = ContextKey("X-Request-Id")
	MethodKey    = ContextKey("X-Method")
	RouteKey     = ContextKey("X-Route")
	RemoteIPKey  = ContextKey("X-Remote-Ip")
	BatchIDKey   = ContextKey("X-Batch-Id")
	JobTypeKey   = ContextKey("X-Job-Type")
)

func set(ctx context.Context, key ContextKey, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

func get(ctx context.Context, key ContextKey) string {
	value, ok := ctx.Value(key).(string)
	if !ok {
		return ""
	}
	return value
}

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return set(ctx, RequestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	return get(ctx, RequestIDKey)
}

func SetMethod(ctx context.Context, method string) context.Context {
	return set(ctx, MethodKey, method)
}

func GetMethod(ctx context.Context) string {
	return get(ctx, MethodKey)
}

func SetRoute(ctx context.Context, route string) context.Context {
	return set(ctx, RouteKey, route)
}

func GetRoute(ctx context.Context) string {
	return get(ctx, RouteKey)
}

func SetRemoteIP(ctx context.Context, remoteIP string) context.Context {
	return set(ctx, RemoteIPKey, remoteIP)
}

func GetRemoteIP(ctx context.Context) string {
	return get(ctx, RemoteIPKey)
}

// SetBatchID tags a context with the batch job it is working for so that
// logs emitted deep inside a run can be correlated with the job row.
func SetBatchID(ctx context.Context, batchID string) context.Context {
	return set(ctx, BatchIDKey, batchID)
}

func GetBatchID(ctx context.Context) string {
	return get(ctx, BatchIDKey)
}

func SetJobType(ctx context.Context, jobType string) context.Context {
	return set(ctx, JobTypeKey, jobType)
}

func GetJobType(ctx context.Context) string {
	return get(ctx, JobTypeKey)
}
