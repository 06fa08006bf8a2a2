/*
Package metrics implements collection of the replicator's performance
metrics.

Two backends are available, selected by Options.Format: the Go
implementation of the Coda Hale metrics library

https://github.com/dropwizard/metrics

and Prometheus

https://github.com/prometheus/client_golang

The collected metrics include the round trip time of every replicated
request by method and destination status code, the replication errors
by kind, the state of the dispatcher queue and the connection pool
statistics of the key-value store. Components publish further counters
and timers through the generic MeasureSince, IncCounter and UpdateGauge
calls.

The metrics are exposed on the support listener, see RegisterHandler.
*/
package metrics
