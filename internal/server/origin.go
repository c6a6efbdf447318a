package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

type originChecker struct {
	allowed  map[string]struct{}
	allowAll bool
	logger   *slog.Logger
}

func newOriginChecker(origins []string, logger *slog.Logger) *originChecker {
	if logger == nil {
		logger = slog.Default()
	}
	oc := &originChecker{
		allowed: make(map[string]struct{}, len(origins)),
		logger:  logger,
	}

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			oc.allowAll = true
			continue
		}
		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			logger.Warn("ignoring invalid configured origin", "origin", origin)
			continue
		}
		oc.allowed[normalized] = struct{}{}
	}

	return oc
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

func (oc *originChecker) check(r *http.Request) bool {
	header := r.Header.Get("Origin")
	if header == "" {
		// Non-browser clients (and same-origin requests in some browsers)
		// send no Origin header; allow them.
		return true
	}

	normalized, ok := normalizeOrigin(header)
	if !ok {
		return false
	}
	if oc.allowAll {
		return true
	}
	if _, ok := oc.allowed[normalized]; ok {
		return true
	}

	oc.logger.Warn("blocked upgrade from disallowed origin", "origin", header)
	return false
}
