package ratelimit

import (
	"strings"

	"github.com/gosimple/slug"
)

const (
	keyPrefix = "rl"

	// AnonymousIdentity is used when neither a verified user nor a client
	// address is known.
	AnonymousIdentity = "anonymous"
)

// MakeKey builds the store key for one identity inside one namespace.
// Namespaces are slugged so "Premium Features" and "premium-features" share
// a quota.
func MakeKey(namespace, identity string) string {
	ns := slug.Make(namespace)
	if ns == "" {
		ns = "default"
	}
	identity = strings.TrimSpace(identity)
	if identity == "" {
		identity = AnonymousIdentity
	}
	return keyPrefix + ":" + ns + ":" + identity
}

// ResolveIdentity picks the verified user over the client address.
func ResolveIdentity(userID, clientIP string) string {
	if userID = strings.TrimSpace(userID); userID != "" {
		return "user:" + userID
	}
	if clientIP = strings.TrimSpace(clientIP); clientIP != "" {
		return "ip:" + clientIP
	}
	return AnonymousIdentity
}
