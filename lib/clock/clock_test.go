// Copyright 2026 The Pybundle Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFakeAdvance(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	fake := Fake(start)

	if !fake.Now().Equal(start) {
		t.Errorf("Now = %v, want %v", fake.Now(), start)
	}

	fake.Advance(90 * time.Second)
	want := start.Add(90 * time.Second)
	if !fake.Now().Equal(want) {
		t.Errorf("Now after Advance = %v, want %v", fake.Now(), want)
	}
}

func TestRealMovesForward(t *testing.T) {
	t.Parallel()

	clock := Real()
	first := clock.Now()
	second := clock.Now()
	if second.Before(first) {
		t.Errorf("real clock went backwards: %v then %v", first, second)
	}
}
