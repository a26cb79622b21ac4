// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package filter implements the user-facing filter configuration and
// the decision engine that turns a classification result into a hide
// or show verdict.
//
// Settings is the durable configuration entity. It is mutated through
// fluent setters that preserve its invariants:
//
//   - every selected language is also listed (menu ordering superset)
//   - the percentage threshold stays within [0,100]
//   - blocked words are whitespace-normalized and never empty
//
// The serialized form is the compact keyed record in record.go; loading
// reconstructs through the same setter path so the invariants are
// re-established no matter what the stored bytes claim.
package filter

import (
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strings"
	"sync"

	"golang.org/x/text/language"
)

// DefaultPercentageThreshold is the confidence floor applied when a
// Settings is constructed without an explicit threshold.
const DefaultPercentageThreshold = 30.0

// UnlistedLanguageError reports an attempt to select a language code
// absent from the listed-language menu. This is caller misuse, not an
// environmental failure, and it propagates.
type UnlistedLanguageError struct {
	Code string
}

func (e *UnlistedLanguageError) Error() string {
	return "filter: language \"" + e.Code + "\" is not listed"
}

// Settings holds every filter predicate the user controls.
//
// # Thread Safety
//
// Settings is shared between the orchestrator (writer) and all item
// pipelines (readers). All access goes through methods; an internal
// RWMutex serializes them.
type Settings struct {
	mu sync.RWMutex

	enabledByDefault bool

	languageFilterEnabled bool
	selectedLanguages     map[string]struct{}
	blockListMode         bool
	listedLanguages       []string
	selectUnknown         bool
	percentageThreshold   float64

	wordFilterEnabled bool
	blockedWords      []string
	regexEnabled      bool
	// compiledPatterns is derived from blockedWords and regexEnabled
	// and kept in sync by the setters.
	compiledPatterns []*regexp.Regexp

	filterReplies bool
}

// NewSettings returns settings with the documented defaults: filtering
// enabled, both predicate groups enabled, the host locale's languages
// selected, and everything else empty or false.
func NewSettings() *Settings {
	s := &Settings{
		enabledByDefault:      true,
		languageFilterEnabled: true,
		wordFilterEnabled:     true,
		selectedLanguages:     make(map[string]struct{}),
		percentageThreshold:   DefaultPercentageThreshold,
	}
	for _, code := range hostLocaleLanguages() {
		s.listedLanguages = append(s.listedLanguages, code)
		s.selectedLanguages[code] = struct{}{}
	}
	return s
}

// hostLocaleLanguages derives default 2-letter language codes from the
// process locale environment. Falls back to "en" when the locale is
// unset or unparseable.
func hostLocaleLanguages() []string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		raw := os.Getenv(key)
		if raw == "" || raw == "C" || raw == "POSIX" {
			continue
		}
		if dot := strings.IndexByte(raw, '.'); dot >= 0 {
			raw = raw[:dot]
		}
		tag, err := language.Parse(strings.ReplaceAll(raw, "_", "-"))
		if err != nil {
			continue
		}
		base, confidence := tag.Base()
		if confidence == language.No {
			continue
		}
		return []string{strings.ToLower(base.String())}
	}
	return []string{"en"}
}

// EnabledByDefault reports whether filtering starts enabled.
func (s *Settings) EnabledByDefault() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabledByDefault
}

// SetEnabledByDefault toggles the startup-enabled flag.
func (s *Settings) SetEnabledByDefault(enabled bool) *Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabledByDefault = enabled
	return s
}

// LanguageFilterEnabled reports whether language predicates apply.
func (s *Settings) LanguageFilterEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.languageFilterEnabled
}

// SetLanguageFilterEnabled toggles the language predicate group.
func (s *Settings) SetLanguageFilterEnabled(enabled bool) *Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.languageFilterEnabled = enabled
	return s
}

// BlockListMode reports whether selected languages are excluded (true)
// rather than being the only ones allowed (false).
func (s *Settings) BlockListMode() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blockListMode
}

// SetBlockListMode switches between allow-mode and block-mode.
func (s *Settings) SetBlockListMode(block bool) *Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blockListMode = block
	return s
}

// SelectUnknown reports whether unknown-language items count as a
// language match.
func (s *Settings) SelectUnknown() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectUnknown
}

// SetSelectUnknown toggles unknown-language matching.
func (s *Settings) SetSelectUnknown(selected bool) *Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectUnknown = selected
	return s
}

// PercentageThreshold returns the confidence floor in [0,100].
func (s *Settings) PercentageThreshold() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.percentageThreshold
}

// SetPercentageThreshold sets the confidence floor, clamping into
// [0,100]. The threshold is not required to be integral.
func (s *Settings) SetPercentageThreshold(threshold float64) *Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.percentageThreshold = min(100, max(0, threshold))
	return s
}

// FilterReplies reports whether reply items are subject to filtering.
func (s *Settings) FilterReplies() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterReplies
}

// SetFilterReplies toggles filtering of reply items.
func (s *Settings) SetFilterReplies(enabled bool) *Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filterReplies = enabled
	return s
}

// ListedLanguages returns the menu-ordered language codes.
func (s *Settings) ListedLanguages() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.listedLanguages)
}

// SelectedLanguages returns the selected codes in menu order.
func (s *Settings) SelectedLanguages() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedInMenuOrderLocked()
}

func (s *Settings) selectedInMenuOrderLocked() []string {
	selected := make([]string, 0, len(s.selectedLanguages))
	for _, code := range s.listedLanguages {
		if _, ok := s.selectedLanguages[code]; ok {
			selected = append(selected, code)
		}
	}
	return selected
}

// IsSelected reports whether a language code is currently selected.
func (s *Settings) IsSelected(code string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.selectedLanguages[normalizeLanguageCode(code)]
	return ok
}

// AddListedLanguage appends a code to the menu if absent.
func (s *Settings) AddListedLanguage(code string) *Settings {
	code = normalizeLanguageCode(code)
	if code == "" {
		return s
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.listedLanguages, code) {
		s.listedLanguages = append(s.listedLanguages, code)
	}
	return s
}

// RemoveListedLanguage drops a code from the menu and, to keep the
// selection invariant, from the selected set.
func (s *Settings) RemoveListedLanguage(code string) *Settings {
	code = normalizeLanguageCode(code)
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := slices.Index(s.listedLanguages, code); i >= 0 {
		s.listedLanguages = slices.Delete(s.listedLanguages, i, i+1)
	}
	delete(s.selectedLanguages, code)
	return s
}

// SetLanguageSelected selects or deselects a listed language. Selecting
// a code that is not listed fails with UnlistedLanguageError.
func (s *Settings) SetLanguageSelected(code string, selected bool) error {
	code = normalizeLanguageCode(code)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !selected {
		delete(s.selectedLanguages, code)
		return nil
	}
	if !slices.Contains(s.listedLanguages, code) {
		return &UnlistedLanguageError{Code: code}
	}
	s.selectedLanguages[code] = struct{}{}
	return nil
}

// BlockedWords returns the normalized blocked-word list.
func (s *Settings) BlockedWords() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.blockedWords)
}

// SetBlockedWords replaces the blocked-word list. Each word is
// whitespace-normalized; empty results are dropped. The compiled
// pattern list is rebuilt when regex mode is on.
func (s *Settings) SetBlockedWords(words []string) *Settings {
	normalized := make([]string, 0, len(words))
	for _, w := range words {
		if n := NormalizeWhitespace(w); n != "" {
			normalized = append(normalized, n)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blockedWords = normalized
	s.recompileLocked()
	return s
}

// RegexEnabled reports whether blocked words are interpreted as
// case-insensitive patterns.
func (s *Settings) RegexEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.regexEnabled
}

// SetRegexEnabled toggles pattern interpretation of blocked words and
// rebuilds the compiled list.
func (s *Settings) SetRegexEnabled(enabled bool) *Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regexEnabled = enabled
	s.recompileLocked()
	return s
}

// WordFilterEnabled reports whether word predicates apply.
func (s *Settings) WordFilterEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wordFilterEnabled
}

// SetWordFilterEnabled toggles the word predicate group.
func (s *Settings) SetWordFilterEnabled(enabled bool) *Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wordFilterEnabled = enabled
	return s
}

// recompileLocked rebuilds compiledPatterns from blockedWords. A word
// that fails to compile is skipped; the remaining patterns still apply.
func (s *Settings) recompileLocked() {
	if !s.regexEnabled {
		s.compiledPatterns = nil
		return
	}
	patterns := make([]*regexp.Regexp, 0, len(s.blockedWords))
	for _, w := range s.blockedWords {
		re, err := regexp.Compile("(?i)" + w)
		if err != nil {
			slog.Debug("skipping invalid blocked-word pattern", "pattern", w, "error", err)
			continue
		}
		patterns = append(patterns, re)
	}
	s.compiledPatterns = patterns
}

// Clone returns an independent deep copy, used by the orchestrator to
// keep the previous settings around for diffing.
func (s *Settings) Clone() *Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Settings{
		enabledByDefault:      s.enabledByDefault,
		languageFilterEnabled: s.languageFilterEnabled,
		selectedLanguages:     make(map[string]struct{}, len(s.selectedLanguages)),
		blockListMode:         s.blockListMode,
		listedLanguages:       slices.Clone(s.listedLanguages),
		selectUnknown:         s.selectUnknown,
		percentageThreshold:   s.percentageThreshold,
		wordFilterEnabled:     s.wordFilterEnabled,
		blockedWords:          slices.Clone(s.blockedWords),
		regexEnabled:          s.regexEnabled,
		filterReplies:         s.filterReplies,
	}
	clone.recompileLocked()
	return clone
}

func normalizeLanguageCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// NormalizeWhitespace collapses every whitespace run to a single space
// and trims the ends. Both item text and blocked words pass through
// this so substring matching sees the same shape on both sides.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
