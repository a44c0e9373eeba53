package mvstore

import (
	"github.com/elliotcourant/mvstore/options"
)

type (
	// Options are params for creating a Store. Use DefaultOptions and the With* methods rather than
	// building the struct by hand.
	Options struct {
		// NumShards is the number of independently locked partitions the version log is split into.
		// Writes to keys that hash to different shards never contend with each other.
		NumShards int

		// DefaultIsolation is the level Session.BeginDefault starts transactions at.
		DefaultIsolation options.IsolationLevel

		// EventLogging enables a golang.org/x/net/trace event log for the store, this is visible on
		// /debug/events when the trace handlers are registered.
		EventLogging bool

		// VerboseLogging logs every begin, commit and rollback at the debug level.
		VerboseLogging bool
	}
)

// DefaultOptions sets a list of recommended options for good behaviour in tests and demos.
func DefaultOptions() Options {
	return Options{
		NumShards:        32,
		DefaultIsolation: options.RepeatableRead,
		EventLogging:     false,
		VerboseLogging:   false,
	}
}

// WithNumShards returns a new Options value with NumShards set to the given value.
func (opt Options) WithNumShards(val int) Options {
	opt.NumShards = val
	return opt
}

// WithDefaultIsolation returns a new Options value with DefaultIsolation set to the given value.
func (opt Options) WithDefaultIsolation(val options.IsolationLevel) Options {
	opt.DefaultIsolation = val
	return opt
}

// WithEventLogging returns a new Options value with EventLogging set to the given value.
func (opt Options) WithEventLogging(val bool) Options {
	opt.EventLogging = val
	return opt
}

// WithVerboseLogging returns a new Options value with VerboseLogging set to the given value.
func (opt Options) WithVerboseLogging(val bool) Options {
	opt.VerboseLogging = val
	return opt
}
