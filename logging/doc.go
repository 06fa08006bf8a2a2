/*
Package logging implements application log instrumentation and Apache
combined access log.

# Application Log

The application log uses the logrus package:

https://github.com/sirupsen/logrus

Components that log receive a Logger at construction time. The
DefaultLog implementation wraps a logrus logger and carries a set of
fields, so that every line of a single replication can be correlated:

	log := logging.New().WithFields(map[string]interface{}{"replication-id": id})
	log.Debugf("request sent to %s", target)

During startup initialization, it is possible to redirect the log output
from the default /dev/stderr to another file, to set a common prefix for
each log entry, to change the level, or to switch to JSON output.

# Access Log

The access log prints HTTP access information of the primary traffic in
the Apache combined access log format. The replicator wraps the proxy
handler with NewHandler, which writes one entry per served request.
Replicated requests never appear in the access log.
*/
package logging
