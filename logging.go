// Copyright (c) 2022 Ilya Toropchenko <eliastor@users.noreply.github.com>
//
// Use if this source code is covered by an MIT-style
// license that can be found in the LICENSE file

package taskpool

import (
	"os"

	"github.com/rs/zerolog"
)

// defaultLogger returns a quiet, JSON-structured logger writing to
// os.Stderr at warn level and above, matching the retrieval pack's own
// NewLogger default posture (structured output suitable for log
// aggregation, not pretty-printed for a terminal).
func defaultLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.WarnLevel).With().Timestamp().Logger()
}

func loggerOrDefault(cfg PoolConfig) zerolog.Logger {
	if cfg.Logger != nil {
		return *cfg.Logger
	}
	return defaultLogger()
}
