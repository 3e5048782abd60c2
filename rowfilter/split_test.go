// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rowfilter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitPushesEligibleLeaves(t *testing.T) {
	f := mustParse(t, "src_a == ?0 && derived_b == ?1")
	pushed, remainder := Split([]string{"src_a"}, f)
	require.Equal(t, "src_a == ?0", pushed.String())
	require.Equal(t, "derived_b == ?1", remainder.String())
}

func TestSplitKeepsWholeOrWhenMixed(t *testing.T) {
	f := mustParse(t, "src_a == ?0 || derived_b == ?1")
	pushed, remainder := Split([]string{"src_a"}, f)
	require.Equal(t, "true", pushed.String())
	require.Equal(t, f.String(), remainder.String())
}

func TestSplitPushesEntireOrWhenAllSourceColumns(t *testing.T) {
	f := mustParse(t, "src_a == ?0 || src_b == ?1")
	pushed, remainder := Split([]string{"src_a", "src_b"}, f)
	require.Equal(t, f.String(), pushed.String())
	require.Equal(t, "true", remainder.String())
}
