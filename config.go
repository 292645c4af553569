// Copyright (c) 2022 Ilya Toropchenko <eliastor@users.noreply.github.com>
//
// Use if this source code is covered by an MIT-style
// license that can be found in the LICENSE file

package taskpool

import (
	"fmt"
	"runtime"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	_ "go.uber.org/automaxprocs" // side effect: GOMAXPROCS reflects container CPU quota

	"github.com/eliastor/taskpool/internal/queue"
)

// Settings carries per-task scheduling hints threaded through from
// submission to invocation. It is a type alias over the internal queue
// package's Settings so callers get a stable, documented type without this
// module exposing its internal queue implementation.
type Settings = queue.Settings

// SizeAuto, passed as PoolConfig.Size, requests GOMAXPROCS(0) workers
// (which automaxprocs has already adjusted for a container's CPU quota).
// Size of exactly zero is distinct and means a pool with no workers at
// all, per spec §6's "n=0 is permitted and yields an inert pool."
const SizeAuto = -1

// PoolConfig configures a new Pool. NewPool normalizes Size and falls back
// to a default Logger when none is given, mirroring the teacher's own
// normalize-on-construct behavior for PoolConfig.
type PoolConfig struct {
	// Size sets the number of workers. SizeAuto means GOMAXPROCS(0); zero
	// means an inert pool with no workers; any positive value is used
	// as-is.
	Size int

	// LobbySize is kept for parity with the teacher's PoolConfig.LobbySize
	// field name. NewPool does not read it: the shared queue always starts
	// at its default capacity and grows on demand.
	LobbySize int

	// Logger receives structured pool diagnostics (warn on non-empty
	// queues at shutdown, fatal before aborting on a drain-loop failure).
	// A quiet default logger is used if nil.
	Logger *zerolog.Logger
}

// envConfig mirrors PoolConfig for environment-variable based
// construction, following the same caarlos0/env tag convention used
// elsewhere in the retrieval pack's service configs.
type envConfig struct {
	Size      int `env:"TASKPOOL_SIZE" envDefault:"-1"`
	LobbySize int `env:"TASKPOOL_LOBBY_SIZE" envDefault:"0"`
}

// NewPoolConfigFromEnv builds a PoolConfig from TASKPOOL_* environment
// variables, for callers that prefer 12-factor-style configuration over
// literal construction. Logger is left nil (default logger applies).
func NewPoolConfigFromEnv() (PoolConfig, error) {
	var ec envConfig
	if err := env.Parse(&ec); err != nil {
		return PoolConfig{}, fmt.Errorf("taskpool: parsing environment config: %w", err)
	}
	return PoolConfig{Size: ec.Size, LobbySize: ec.LobbySize}, nil
}

// normalizedSize resolves PoolConfig.Size to a concrete worker count.
// SizeAuto falls back to GOMAXPROCS(0), cross-checked against gopsutil's
// logical CPU count when GOMAXPROCS reports something nonsensical — the
// same fallback chain the retrieval pack's dynamic capacity manager uses
// for its own sizing decisions. Any non-negative value, including zero, is
// used as-is.
func normalizedSize(size int) int {
	if size >= 0 {
		return size
	}
	n := runtime.GOMAXPROCS(0)
	if n < 1 {
		if counted, err := cpu.Counts(true); err == nil && counted > 0 {
			return counted
		}
		return 1
	}
	return n
}
