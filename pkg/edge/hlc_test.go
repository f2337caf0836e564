// Copyright 2026 The Weaved Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package edge

import "testing"

func TestClockMonotonicSameSession(t *testing.T) {
	c := NewClock()
	a := c.Next(1, 1000)
	b := c.Next(1, 1000) // wall clock did not advance
	if b.Encode() <= a.Encode() {
		t.Fatalf("expected b > a, got a=%d b=%d", a.Encode(), b.Encode())
	}

	d := c.Next(1, 2000) // wall clock advanced past prior physical reading
	if d.Encode() <= b.Encode() {
		t.Fatalf("expected d > b, got b=%d d=%d", b.Encode(), d.Encode())
	}
	if d.Logical != 0 {
		t.Fatalf("expected logical reset to 0 after physical advance, got %d", d.Logical)
	}
}

func TestNextMicrosStrictlyIncreasesOnCollision(t *testing.T) {
	c := NewClock()
	a := c.NextMicros(1, 1000)
	b := c.NextMicros(1, 1000) // wall clock did not advance
	if b <= a {
		t.Fatalf("expected b > a, got a=%d b=%d", a, b)
	}
	d := c.NextMicros(1, 5000) // wall clock advanced well past prior reading
	if d != 5000 {
		t.Fatalf("expected clean advance to report the new wall-clock reading, got %d", d)
	}
}

func TestClockIndependentPerSession(t *testing.T) {
	c := NewClock()
	a := c.Next(1, 5000)
	b := c.Next(2, 5000)
	if a.Encode() != b.Encode() {
		// both are first-seen with identical now; fine, but confirm no cross talk
	}
	a2 := c.Next(1, 5000)
	if a2.Encode() <= a.Encode() {
		t.Fatalf("session 1 should have advanced independent of session 2 reads")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	h := HLC{PhysicalUs: 1712345678901234, Logical: 7}
	got := DecodeHLC(h.Encode())
	if got != h {
		t.Fatalf("round trip mismatch: want %+v got %+v", h, got)
	}
}

func TestParseEnvironment(t *testing.T) {
	cases := map[string]Environment{
		"dev":        EnvDev,
		"":           EnvDev,
		"bogus":      EnvDev,
		"STAGING":    EnvStaging,
		"production": EnvProd,
		"Test":       EnvTest,
	}
	for in, want := range cases {
		if got := ParseEnvironment(in); got != want {
			t.Errorf("ParseEnvironment(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSpanTypeIsToolLike(t *testing.T) {
	toolLike := []SpanType{SpanToolCall, SpanToolResponse, SpanRetrieval, SpanHTTPCall, SpanDatabase}
	for _, st := range toolLike {
		if !st.IsToolLike() {
			t.Errorf("%v should be tool-like", st)
		}
	}
	notToolLike := []SpanType{SpanRoot, SpanPlanning, SpanReasoning, SpanSynthesis, SpanResponse, SpanError}
	for _, st := range notToolLike {
		if st.IsToolLike() {
			t.Errorf("%v should not be tool-like", st)
		}
	}
}
