// Package api defines the wire types the HTTP layer and CLI share, and the
// JobService that turns accepted uploads into scheduled jobs.
//
// JobService is the only way web handlers touch the registry and scheduler:
// Submit validates a request, creates the record, and queues it without
// waiting; Status and List return transport-friendly snapshots. Converters
// such as FromJob keep the JSON shape independent of the internal Job type.
package api
