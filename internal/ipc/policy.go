package ipc

import (
	"strings"
)

// CallerPolicy decides whether a caller may use a channel.
type CallerPolicy interface {
	Allow(channel string, caller Caller) error
}

// OriginPolicy admits callers whose Origin is in the allow list. An empty
// list admits everyone. Callers without an origin are only admitted when
// AllowNoOrigin is set (local tools such as the CLI send none).
type OriginPolicy struct {
	AllowedOrigins []string
	AllowNoOrigin  bool
}

func (p OriginPolicy) Allow(channel string, caller Caller) error {
	if len(p.AllowedOrigins) == 0 {
		return nil
	}
	if caller.Origin == "" {
		if p.AllowNoOrigin {
			return nil
		}
		return NewError(CodeAccessDenied, "Unauthorized IPC call")
	}
	for _, allowed := range p.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, caller.Origin) {
			return nil
		}
	}
	return NewError(CodeAccessDenied, "IPC call from unauthorized origin")
}
