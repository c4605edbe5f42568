// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitArgsHonorsQuotes(t *testing.T) {
	args, err := splitArgs(`insert t|a "hello world"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"insert", "t|a", "hello world"}, args)
}

func TestSplitArgsRejectsUnterminatedQuote(t *testing.T) {
	_, err := splitArgs(`insert t|a "oops`)
	assert.Error(t, err)
}

func TestRunInsertEraseStats(t *testing.T) {
	in := strings.NewReader(strings.Join([]string{
		`insert t|a 1`,
		`insert t|b 2`,
		`erase t|a`,
		`stats`,
	}, "\n"))
	var out strings.Builder

	require.NoError(t, run(in, &out))

	got := out.String()
	assert.Contains(t, got, `"store_size": 1`)
	assert.Contains(t, got, `"n_insert": 2`)
	assert.Contains(t, got, `"n_erase": 1`)
}

func TestRunAddJoinAndValidate(t *testing.T) {
	in := strings.NewReader(strings.Join([]string{
		`insert f|a|1 x`,
		`add-join "count v|<u:1> f|<u>|<v:1>" "v|" "v}"`,
		`validate "v|" "v}"`,
		`stats`,
	}, "\n"))
	var out strings.Builder

	require.NoError(t, run(in, &out))
	assert.Contains(t, out.String(), `"n_validate"`)
}

func TestRunReportsErrorsWithoutStopping(t *testing.T) {
	in := strings.NewReader(strings.Join([]string{
		`add-join badspec onlyonefield`, // wrong arg count
		`insert t|a 1`,
		`stats`,
	}, "\n"))
	var out strings.Builder

	require.NoError(t, run(in, &out))
	got := out.String()
	assert.Contains(t, got, "error:")
	assert.Contains(t, got, `"store_size": 1`)
}
