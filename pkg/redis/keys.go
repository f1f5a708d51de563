package redis

import "strings"

const keyNamespace = "ts"

// Keys builds the namespaced key layout. It is embedded in Client so callers can
// ask the client for the key it will later read or write.
type Keys struct{}

func (Keys) IdempotencyKey(scope, id string) string {
	return join("idempotency", scope, id)
}

func (Keys) AccessSessionKey(accessID string) string {
	return join("session", "access", accessID)
}

// TableStatusKey caches whether a user currently sits at a table.
func (Keys) TableStatusKey(userID string) string {
	return join("table_status", userID)
}

// TableChannel is the pub/sub channel for snapshots of one table.
func (Keys) TableChannel(locationID, tableID string) string {
	return join("table_feed", locationID, tableID)
}

func (Keys) LockKey(name string) string {
	return join("lock", name)
}

func join(parts ...string) string {
	var sb strings.Builder
	sb.WriteString(keyNamespace)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			sb.WriteByte(':')
			sb.WriteString(part)
		}
	}
	return sb.String()
}
