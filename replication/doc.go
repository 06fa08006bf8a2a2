/*
Package replication mirrors inbound HTTP requests to a destination
backend without affecting the primary request.

# Flow

A Forwarder wraps the primary handler. For every request it captures a
Snapshot, derives the session key from the session cookie, translates
the destination URI and checks that the method can be replicated. This
part runs on the caller's goroutine and does no I/O besides reading the
form body, which is put back on the request.

The rest runs on a Dispatcher worker:

	Built -> Sent -> Succeeded -> ReconcileCookies -> ReconcileCSRF -> Done
	           \-> Failed

The worker looks up the cookie jar of the session and the translated
CSRF token in the store, sends the request, stores the cookies set by
the destination and, when the inbound request carried an
authenticity_token, the CSRF token found in the destination's response
body.

# Cookies

The destination's cookies are kept per session as a JSON object. When
a jar exists it replaces the inbound Cookie header, otherwise the
inbound header is sent as is.

# CSRF tokens

A form sent to the primary carries the primary's token. The token the
destination issued for the same page is stored under "csrf-" followed
by the primary's token and substituted before sending.

# Errors

Failures never reach the primary response. They are logged with the
replication-id, method and path fields and counted per Kind.
*/
package replication
