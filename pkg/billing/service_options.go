package billing

import "log/slog"

// ServiceOption configures a Service instance.
type ServiceOption func(*service)

// WithUserResolver sets a custom authenticated-user resolver.
// The default resolver (SessionUserResolver) expects a session in context.
func WithUserResolver(resolver UserResolver) ServiceOption {
	return func(s *service) {
		if resolver != nil {
			s.resolver = resolver
		}
	}
}

// WithLogger sets the logger used by the service.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *service) {
		if log != nil {
			s.log = log
		}
	}
}
