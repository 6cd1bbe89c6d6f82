// ABOUTME: Authentication context for tracking identity through request handlers
// ABOUTME: Provides WithSubject/SubjectFromContext for propagating the token subject

package auth

import "context"

// subjectKey is the key type for storing the subject in context.Context.
type subjectKey struct{}

// WithSubject returns a new context carrying the authenticated subject.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFromContext returns the authenticated subject, or "" for anonymous requests.
func SubjectFromContext(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey{}).(string)
	return s
}
