/*
Package replicator provides an HTTP proxy that serves the requests from
a primary application and replicates each of them, asynchronously, to a
secondary destination.

The replicator is meant for shadowing production traffic to a new
version of an application. The clients only ever see the responses of
the primary backend. The destination gets a rebuilt copy of the request
with the same method, path, query and form parameters and headers like
Accept, User-Agent and Referer.

# Sessions

Applications behind the replicator usually keep a session cookie. The
session of the destination is different from the session of the
primary, so the replicator keeps a cookie jar per primary session in a
key-value store and sends the destination's cookies instead of the
client's ones. The session is identified by the cookie named with the
SessionKey option.

# CSRF tokens

When the destination renders a page with a CSRF token, the token is
stored and mapped to the token the primary handed out in the same page
view. A later form post carrying the primary's authenticity_token gets
the destination's token substituted.

# Store

The cookie jars and the tokens are kept in Redis, Valkey or, for a
single instance and for tests, in memory. See the store package.

# Running

The replicator executable is in cmd/replicator. Programmatic use:

	err := replicator.Run(replicator.Options{
		Address:         ":9090",
		PrimaryBackend:  "http://localhost:3000",
		DestinationHost: "shadow.example.org",
		DestinationPort: 80,
		StoreKind:       store.RedisKind,
		StoreHost:       "localhost",
		StorePort:       6379,
	})

Run blocks until SIGTERM or SIGINT, then stops accepting requests and
drains the queued replications within ShutdownTimeout.
*/
package replicator
