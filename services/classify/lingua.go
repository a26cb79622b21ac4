// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package classify

import (
	"context"
	"strings"
	"sync"

	"github.com/pemistahl/lingua-go"
)

// linguaReliableConfidence is the top-language confidence above which a
// local detection is marked reliable.
const linguaReliableConfidence = 0.5

var (
	linguaDetectorOnce sync.Once
	linguaDetector     lingua.LanguageDetector
)

// sharedLinguaDetector builds the process-wide lingua detector. The
// build loads every language model, so it happens once and is shared by
// all LinguaOracle instances.
func sharedLinguaDetector() lingua.LanguageDetector {
	linguaDetectorOnce.Do(func() {
		linguaDetector = lingua.NewLanguageDetectorBuilder().
			FromAllLanguages().
			WithLowAccuracyMode().
			WithPreloadedLanguageModels().
			Build()
	})
	return linguaDetector
}

// LinguaOracle is the in-process Oracle backed by the lingua-go
// statistical detector. It needs no network and is the default backend.
type LinguaOracle struct {
	detector lingua.LanguageDetector
}

// NewLinguaOracle returns an oracle sharing the process-wide detector.
func NewLinguaOracle() *LinguaOracle {
	return &LinguaOracle{detector: sharedLinguaDetector()}
}

// Classify implements Oracle. The confidence distribution lingua
// produces is rescaled to percentages; languages are reported as
// lowercase ISO 639-1 codes.
func (o *LinguaOracle) Classify(ctx context.Context, text string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	values := o.detector.ComputeLanguageConfidenceValues(text)
	if len(values) == 0 {
		return &Result{
			Reliable:  false,
			Languages: []LanguageScore{{Code: UnknownLanguageCode, Percentage: 100}},
		}, nil
	}

	languages := make([]LanguageScore, 0, len(values))
	for _, v := range values {
		languages = append(languages, LanguageScore{
			Code:       strings.ToLower(v.Language().IsoCode639_1().String()),
			Percentage: v.Value() * 100,
		})
	}

	return &Result{
		Reliable:  values[0].Value() >= linguaReliableConfidence,
		Languages: languages,
	}, nil
}
