package services

import "context"

type contextKey int

const (
	subjectKey contextKey = iota
	requestMetaKey
)

// RequestMeta describes the client behind a request, for audit records.
type RequestMeta struct {
	IPAddress string
	UserAgent string
	RequestID string
}

// WithSubject stores the validated token subject on ctx.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey, subject)
}

// SubjectFromContext returns the token subject placed by the auth middleware.
func SubjectFromContext(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(subjectKey).(string)
	return subject, ok && subject != ""
}

func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey, meta)
}

func RequestMetaFromContext(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(requestMetaKey).(RequestMeta)
	return meta
}
