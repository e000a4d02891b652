package security

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var alertCounterScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// Security event names observed by the auth service.
const (
	EventSignup        = "auth.signup"
	EventLogin         = "auth.login"
	EventAdminLogin    = "auth.admin.login"
	EventLogout        = "auth.logout"
	EventAuthorize     = "auth.authorize"
	EventResetSend     = "auth.password_reset.send"
	EventResetVerify   = "auth.password_reset.verify"
	OutcomeSuccess     = "success"
	OutcomeFail        = "fail"
	OutcomeRateLimited = "rate_limited"
)

// AlertResult contains alert evaluation output.
type AlertResult struct {
	Triggered bool
	Count     int64
	Threshold int64
	Window    time.Duration
}

// AuditAlerter aggregates security events and triggers threshold alerts.
type AuditAlerter struct {
	client *redis.Client
	prefix string
}

// NewAuditAlerter creates an alerter backed by Redis counters. A nil client
// yields a nil alerter whose Observe is a no-op.
func NewAuditAlerter(client *redis.Client, prefix string) *AuditAlerter {
	if client == nil {
		return nil
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "healthconnect:auth:alerts"
	}
	return &AuditAlerter{client: client, prefix: prefix}
}

// Observe records a security event and returns whether alert threshold is reached.
func (a *AuditAlerter) Observe(ctx context.Context, event, outcome, ip string) (AlertResult, error) {
	result := AlertResult{}
	if a == nil || a.client == nil {
		return result, nil
	}
	threshold, window, ok := alertRule(event, outcome)
	if !ok {
		return result, nil
	}
	ip = strings.TrimSpace(ip)
	if ip == "" {
		ip = "unknown"
	}
	windowMs := window.Milliseconds()
	slot := time.Now().UTC().UnixMilli() / windowMs
	key := fmt.Sprintf("%s:%s:%s:%s:%d", a.prefix, sanitizeSegment(event), sanitizeSegment(outcome), sanitizeSegment(ip), slot)
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	count, err := alertCounterScript.Run(ctx, a.client, []string{key}, windowMs).Int64()
	if err != nil {
		return result, err
	}
	result.Count = count
	result.Threshold = threshold
	result.Window = window
	result.Triggered = count >= threshold
	return result, nil
}

func alertRule(event, outcome string) (threshold int64, window time.Duration, ok bool) {
	event = strings.TrimSpace(event)
	outcome = strings.TrimSpace(outcome)
	if outcome == OutcomeRateLimited {
		return 20, time.Minute, true
	}
	if outcome != OutcomeFail {
		return 0, 0, false
	}
	switch event {
	case EventLogin, EventSignup, EventAdminLogin:
		return 10, 5 * time.Minute, true
	case EventResetVerify:
		return 5, 15 * time.Minute, true
	case EventResetSend, EventLogout:
		return 15, 5 * time.Minute, true
	case EventAuthorize:
		return 25, 5 * time.Minute, true
	default:
		return 0, 0, false
	}
}

func sanitizeSegment(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}
	replacer := strings.NewReplacer(":", "_", "|", "_", " ", "_")
	return replacer.Replace(in)
}
