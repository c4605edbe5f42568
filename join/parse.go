// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package join

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pequod-go/pq/pattern"
	"go.uber.org/zap"
)

var verbs = map[string]ValueType{
	"copy":  ValueCopyLast,
	"count": ValueCountMatch,
	"min":   ValueMin,
	"max":   ValueMax,
	"sum":   ValueSum,
}

// Parse parses one line of join-spec grammar:
//
//	[verb] sink-pattern source-pattern... [maintained] [staleness=<microseconds>]
//
// verb is one of copy/count/min/max/sum and defaults to copy when the
// first field isn't a recognized verb. The sink and source patterns share
// one slot-length namespace, per pattern.ParseWithLengths, parsed sink
// first: a slot sized in the sink or an earlier source can be reused by
// name in a later source, but a sink slot must carry its own length.
func Parse(line string) (*Join, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("join: empty spec")
	}

	vt := ValueCopyLast
	i := 0
	if t, ok := verbs[fields[0]]; ok {
		vt = t
		i = 1
	}
	if i >= len(fields) {
		return nil, fmt.Errorf("join %q: missing sink pattern", line)
	}
	sinkStr := fields[i]
	i++

	var sourceStrs []string
	maintained := false
	var stalenessUS int64
	for ; i < len(fields); i++ {
		f := fields[i]
		switch {
		case f == "maintained":
			maintained = true
		case strings.HasPrefix(f, "staleness="):
			n, err := strconv.ParseInt(strings.TrimPrefix(f, "staleness="), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("join %q: bad staleness flag %q: %w", line, f, err)
			}
			stalenessUS = n
		default:
			sourceStrs = append(sourceStrs, f)
		}
	}
	if len(sourceStrs) == 0 {
		return nil, fmt.Errorf("join %q: at least one source pattern required", line)
	}
	if !maintained && stalenessUS == 0 {
		// neither flag given: default to push-maintained, matching the
		// concrete scenarios in spec.md §8 which name no explicit flag.
		maintained = true
	}

	lengths := map[string]int{}
	sink, err := pattern.ParseWithLengths(sinkStr, lengths)
	if err != nil {
		return nil, fmt.Errorf("join %q: sink pattern: %w", line, err)
	}

	sources := make([]*pattern.Pattern, 0, len(sourceStrs))
	for _, s := range sourceStrs {
		p, err := pattern.ParseWithLengths(s, lengths)
		if err != nil {
			return nil, fmt.Errorf("join %q: source pattern %q: %w", line, s, err)
		}
		sources = append(sources, p)
	}

	for _, name := range sink.SlotNames() {
		if _, ok := lengths[name]; !ok {
			return nil, fmt.Errorf("join %q: sink slot %q never sized", line, name)
		}
	}

	return &Join{
		Sink:        sink,
		Sources:     sources,
		ValueType:   vt,
		Maintained:  maintained,
		StalenessUS: stalenessUS,
	}, nil
}

// ParseAndLog parses line and, on failure, logs the rejection at Warn
// instead of returning the error — the caller (Server.AddJoin) installs
// nothing and moves on, per the "malformed pattern" line of the error
// handling policy.
func ParseAndLog(line string, log *zap.Logger) (*Join, bool) {
	j, err := Parse(line)
	if err != nil {
		log.Warn("rejecting malformed join spec", zap.String("spec", line), zap.Error(err))
		return nil, false
	}
	return j, true
}
