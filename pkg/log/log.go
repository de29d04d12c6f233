package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide root logger. Subsystems derive child
// loggers from it with WithComponent and WithInvocation rather than
// logging through it directly; until Init runs it writes JSON to
// stderr at the info level.
var Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// Config controls the root logger's behavior.
type Config struct {
	// Level is a zerolog level name ("trace", "debug", "info", "warn",
	// "error"). Unrecognized names fall back to info rather than
	// failing startup over a typo'd flag.
	Level string
	// JSONOutput emits one JSON object per line for log shippers; when
	// false, lines are rendered in zerolog's human console format.
	JSONOutput bool
	// Output defaults to stderr so a worker's stdout stays free for
	// the monitor commands' event feed.
	Output io.Writer
}

// Init configures the global Logger. Call once at process startup,
// before any worker pool runs.
func Init(cfg Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Suspension waits and invocation runtimes are the durations this
	// system logs; millisecond resolution reads better than seconds
	// for both.
	zerolog.DurationFieldUnit = time.Millisecond

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if !cfg.JSONOutput {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	Logger = zerolog.New(out).With().Timestamp().Logger()
}

// WithComponent returns a child logger for one subsystem (broker,
// receiver, consumer, worker, stream, runtime).
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithInvocation returns a child logger carrying the pair of
// identifiers every per-invocation line needs: the invocation id and
// the routine it runs. The two always travel together; an id without
// its routine name is not greppable in a fleet-wide aggregate.
func WithInvocation(invocationID, routine string) zerolog.Logger {
	return Logger.With().
		Str("invocation_id", invocationID).
		Str("routine", routine).
		Logger()
}
