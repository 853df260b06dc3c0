package storage

import (
	"strings"
	"time"
)

func BanKey(userID string) string { return "ban:" + userID }

// ChatCounterKey is the per-day counter of started chats, in UTC.
func ChatCounterKey(userID string, t time.Time) string {
	return "chats:" + userID + ":" + t.UTC().Format("20060102")
}

// profileGender normalizes a gender preference; "" means any.
func profileGender(g string) string {
	g = strings.ToLower(strings.TrimSpace(g))
	if g == "random" {
		return ""
	}
	return g
}
