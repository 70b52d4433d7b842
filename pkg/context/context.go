package context

import (
	"context"
	"strings"
)

type ContextKey string

var (
	RequestIDKey = ContextKey("X-Request-Id")
	MethodKey    = ContextKey("X-Method")
	RouteKey     = ContextKey("X-Route")
	RemoteIPKey  = ContextKey("X-Remote-Ip")
	UserIDKey    = ContextKey("X-User-Id")
	RolesKey     = ContextKey("X-User-Roles")
	RunIDKey     = ContextKey("X-Run-Id")
	PartnerKey   = ContextKey("X-Partner")
)

func getString(ctx context.Context, key ContextKey) string {
	value, ok := ctx.Value(key).(string)
	if !ok {
		return ""
	}
	return value
}

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	return getString(ctx, RequestIDKey)
}

func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func GetUserID(ctx context.Context) string {
	return getString(ctx, UserIDKey)
}

func SetMethod(ctx context.Context, method string) context.Context {
	return context.WithValue(ctx, MethodKey, method)
}

func GetMethod(ctx context.Context) string {
	return getString(ctx, MethodKey)
}

func SetRoute(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, RouteKey, route)
}

func GetRoute(ctx context.Context) string {
	return getString(ctx, RouteKey)
}

func SetRemoteIP(ctx context.Context, remoteIP string) context.Context {
	return context.WithValue(ctx, RemoteIPKey, remoteIP)
}

func GetRemoteIP(ctx context.Context) string {
	return getString(ctx, RemoteIPKey)
}

func SetRoles(ctx context.Context, roles []string) context.Context {
	return context.WithValue(ctx, RolesKey, roles)
}

func GetRoles(ctx context.Context) []string {
	value, ok := ctx.Value(RolesKey).([]string)
	if !ok {
		return nil
	}
	return value
}

// HasRole reports whether the caller carries role (case-insensitive).
func HasRole(ctx context.Context, role string) bool {
	for _, r := range GetRoles(ctx) {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// SetRun tags ctx with the import run it belongs to so logs and events can be correlated.
func SetRun(ctx context.Context, runID string, partner string) context.Context {
	ctx = context.WithValue(ctx, RunIDKey, runID)
	return context.WithValue(ctx, PartnerKey, partner)
}

func GetRunID(ctx context.Context) string {
	return getString(ctx, RunIDKey)
}

func GetPartner(ctx context.Context) string {
	return getString(ctx, PartnerKey)
}

// RunFields returns the run id and partner as log fields, merged over extra. Outside a run it
// returns extra unchanged.
func RunFields(ctx context.Context, extra map[string]any) map[string]any {
	fields := make(map[string]any, len(extra)+2)
	for k, v := range extra {
		fields[k] = v
	}
	if runID := GetRunID(ctx); runID != "" {
		fields["run_id"] = runID
	}
	if partner := GetPartner(ctx); partner != "" {
		fields["partner"] = partner
	}
	return fields
}
