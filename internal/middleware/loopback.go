package middleware

import (
	"net"
	"net/http"
)

// LoopbackOnly rejects requests that do not originate from the local host.
// The relay's API carries the account's notification history and must never
// be reachable from the network even if the listener is misconfigured.
func LoopbackOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := net.ParseIP(RemoteHost(r))
		if ip == nil || !ip.IsLoopback() {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
