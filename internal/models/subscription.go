package models

import "strings"

// PushSubscription is one subscriber endpoint. Web and mobile subscribers
// are unified on the endpoint URL: mobile FCM tokens are stored as
// synthetic fcm.googleapis.com endpoints, so the trailing path segment is
// always the provider token.
type PushSubscription struct {
	ID       int64  `json:"id"`
	Endpoint string `json:"endpoint"`
}

// Token extracts the provider token from the subscription endpoint.
// Returns "" when the endpoint has no token segment.
func (s PushSubscription) Token() string {
	idx := strings.LastIndex(s.Endpoint, "/")
	if idx < 0 || idx == len(s.Endpoint)-1 {
		return ""
	}
	return s.Endpoint[idx+1:]
}
