// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package filter

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Record is the compact persisted form of Settings. The short keys are
// fixed for backward compatibility with existing stored settings; do
// not rename them.
//
// "ef" predates "ed" as the enable flag. It is still written (as a copy
// of "ed") so old readers keep working, and it is honored on load only
// when "ed" is absent.
type Record struct {
	Enabled        *bool    `json:"ed"`
	LegacyEnabled  *bool    `json:"ef"`
	LanguageFilter bool     `json:"el"`
	BlockList      bool     `json:"bl"`
	Selected       []string `json:"il"`
	IncludeUnknown bool     `json:"iu"`
	Listed         []string `json:"ll"`
	Threshold      float64  `json:"pt" validate:"gte=0,lte=100"`
	WordFilter     bool     `json:"ew"`
	BlockedWords   []string `json:"bw"`
	Regex          bool     `json:"re"`
	FilterReplies  bool     `json:"fr"`
}

var recordValidator = validator.New()

// Validate checks the field-level constraints of a raw record before it
// is turned into Settings.
func (r *Record) Validate() error {
	if err := recordValidator.Struct(r); err != nil {
		return fmt.Errorf("invalid settings record: %w", err)
	}
	return nil
}

// ToRecord captures the current settings as a Record. Selected codes
// are emitted in menu order so the options UI reproduces its layout.
func (s *Settings) ToRecord() Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	enabled := s.enabledByDefault
	return Record{
		Enabled:        &enabled,
		LegacyEnabled:  &enabled,
		LanguageFilter: s.languageFilterEnabled,
		BlockList:      s.blockListMode,
		Selected:       s.selectedInMenuOrderLocked(),
		IncludeUnknown: s.selectUnknown,
		Listed:         append([]string(nil), s.listedLanguages...),
		Threshold:      s.percentageThreshold,
		WordFilter:     s.wordFilterEnabled,
		BlockedWords:   append([]string(nil), s.blockedWords...),
		Regex:          s.regexEnabled,
		FilterReplies:  s.filterReplies,
	}
}

// MarshalJSON is a convenience for persisting Settings directly.
func (s *Settings) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.ToRecord())
}

// FromRecord reconstructs Settings from a stored record through the
// regular setter path, so every invariant holds afterwards even for
// records written by older versions or edited by hand. Selected codes
// missing from the listed menu are re-listed rather than dropped.
func FromRecord(rec Record) (*Settings, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	s := NewSettings()

	enabled := true
	switch {
	case rec.Enabled != nil:
		enabled = *rec.Enabled
	case rec.LegacyEnabled != nil:
		enabled = *rec.LegacyEnabled
	}
	s.SetEnabledByDefault(enabled)
	s.SetLanguageFilterEnabled(rec.LanguageFilter)
	s.SetBlockListMode(rec.BlockList)
	s.SetSelectUnknown(rec.IncludeUnknown)
	s.SetPercentageThreshold(rec.Threshold)
	s.SetWordFilterEnabled(rec.WordFilter)
	s.SetBlockedWords(rec.BlockedWords)
	s.SetRegexEnabled(rec.Regex)
	s.SetFilterReplies(rec.FilterReplies)

	// The stored menu replaces the locale-derived default entirely.
	s.mu.Lock()
	s.listedLanguages = nil
	s.selectedLanguages = make(map[string]struct{})
	s.mu.Unlock()
	for _, code := range rec.Listed {
		s.AddListedLanguage(code)
	}
	for _, code := range rec.Selected {
		s.AddListedLanguage(code)
		if err := s.SetLanguageSelected(code, true); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// LoadJSON parses a persisted record and reconstructs Settings.
func LoadJSON(data []byte) (*Settings, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse settings record: %w", err)
	}
	return FromRecord(rec)
}
