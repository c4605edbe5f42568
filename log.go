// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package pq

import "go.uber.org/zap"

// Option configures a Server at construction time.
type Option func(*Server)

// WithLogger overrides the default production zap.Logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithPartitioner overrides the default local-only Partitioner.
func WithPartitioner(p Partitioner) Option {
	return func(s *Server) { s.partitioner = p }
}

func defaultLogger() *zap.Logger {
	log, err := zap.NewProduction()
	if err != nil {
		// zap's production config only fails to build on a broken sink;
		// falling back to NewNop keeps the store usable instead of
		// panicking over a logging misconfiguration.
		return zap.NewNop()
	}
	return log
}
