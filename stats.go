// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package pq

import "github.com/goccy/go-json"

// TableStats counts the lifetime operations performed against one Table.
type TableStats struct {
	NInsert        int64 `json:"n_insert"`
	NModify        int64 `json:"n_modify"`
	NModifyNoHint  int64 `json:"n_modify_no_hint"`
	NErase         int64 `json:"n_erase"`
	NValidate      int64 `json:"n_validate"`
	NSubtables     int64 `json:"n_subtables"`
}

// add returns the element-wise sum of a and b, used to roll up a
// triecut-nested Table's own counters with those of its descendant
// subtables into one per-table-name total.
func (a TableStats) add(b TableStats) TableStats {
	a.NInsert += b.NInsert
	a.NModify += b.NModify
	a.NModifyNoHint += b.NModifyNoHint
	a.NErase += b.NErase
	a.NValidate += b.NValidate
	a.NSubtables += b.NSubtables
	return a
}

// Stats is the JSON-serializable snapshot returned by Server.Stats.
type Stats struct {
	StoreSize        int                    `json:"store_size"`
	SourceRangesSize int                    `json:"source_ranges_size"`
	JoinRangesSize   int                    `json:"join_ranges_size"`
	ValidRangesSize  int                    `json:"valid_ranges_size"`
	ValidateUS       float64                `json:"validate_us"`
	InsertUS         float64                `json:"insert_us"`
	Tables           map[string]TableStats  `json:"tables,omitempty"`
}

// MarshalJSON delegates to goccy/go-json, matching the rest of the store's
// JSON surface.
func (s Stats) MarshalJSON() ([]byte, error) {
	type alias Stats
	return json.Marshal(alias(s))
}
