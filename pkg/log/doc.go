/*
Package log provides structured logging for queueio using zerolog.

The root Logger writes to stderr so that worker stdout stays free for
the monitor commands. Subsystems log through child loggers that carry
the identifiers this domain greps by:

	log.Init(log.Config{Level: "info", JSONOutput: true})

	pool := log.WithComponent("worker")
	pool.Info().Int("concurrency", 4).Msg("runner pool started")

	inv := log.WithInvocation(id, "orders.ship")
	inv.Debug().Dur("suspended", wait).Msg("resumed")

Durations are logged in milliseconds: suspension waits and invocation
runtimes are the durations that appear here, and neither reads well in
seconds. Level names are zerolog's; an unrecognized name degrades to
info instead of failing startup.
*/
package log
