// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package classify defines the language-classification boundary of the
// filtering engine: the Oracle interface, the result types it produces,
// and a bounded memoization cache keyed by content fingerprint.
//
// The engine treats classification as a black box. An Oracle maps a
// content string to a confidence distribution over language codes; the
// same text usually, but not necessarily, yields the same distribution.
// Caching by fingerprint is therefore an optimization, never a
// correctness requirement.
package classify

import (
	"context"
	"errors"
)

// UnknownLanguageCode is the BCP-47 code for undetermined content. An
// oracle may emit it directly; the decision engine also treats a result
// with no entry above the percentage threshold as unknown.
const UnknownLanguageCode = "und"

// ErrOracleUnavailable wraps failures of the classification backend.
// Callers treat it like any other pipeline failure: the item keeps its
// last-known visibility and the next refresh is the retry.
var ErrOracleUnavailable = errors.New("classification oracle unavailable")

// LanguageScore is one entry of a confidence distribution. Code is a
// lowercase BCP-47 tag ("en", "en-US", "und"); Percentage is in [0,100].
type LanguageScore struct {
	Code       string  `json:"code"`
	Percentage float64 `json:"percentage"`
}

// Result is the outcome of classifying one content string. Languages is
// ordered by descending confidence. Results are immutable once produced
// and may be shared across items through the cache.
type Result struct {
	Reliable  bool            `json:"is_reliable"`
	Languages []LanguageScore `json:"languages"`
}

// Oracle classifies a content string into a language distribution.
//
// Implementations must be safe for concurrent use. Classify blocks
// until classification completes or ctx is done; errors are reported,
// never retried internally.
type Oracle interface {
	Classify(ctx context.Context, text string) (*Result, error)
}

// OracleFunc adapts a plain function to the Oracle interface.
type OracleFunc func(ctx context.Context, text string) (*Result, error)

// Classify implements Oracle.
func (f OracleFunc) Classify(ctx context.Context, text string) (*Result, error) {
	return f(ctx, text)
}
