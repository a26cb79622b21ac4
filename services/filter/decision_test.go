// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package filter

import (
	"testing"

	"github.com/AleutianAI/threadlens/services/classify"
)

func classification(scores ...classify.LanguageScore) *classify.Result {
	return &classify.Result{Reliable: true, Languages: scores}
}

func score(code string, pct float64) classify.LanguageScore {
	return classify.LanguageScore{Code: code, Percentage: pct}
}

// allowModeSettings: selectedLanguages={en}, allow-mode, threshold=50,
// selectUnknown=false.
func allowModeSettings(t *testing.T) *Settings {
	s := newTestSettings(t)
	s.SetPercentageThreshold(50)
	return s
}

func TestShouldFilterByLanguage(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
		result *classify.Result
		want   bool
	}{
		{
			name:   "all entries below threshold is unknown and filtered",
			result: classification(score("en", 49), score("de", 49), score("ja", 2)),
			want:   true,
		},
		{
			name:   "region variant matches its primary subtag",
			result: classification(score("en-US", 50), score("de", 48), score("ja", 2)),
			want:   false,
		},
		{
			name:   "selected language at threshold passes",
			result: classification(score("en", 50)),
			want:   false,
		},
		{
			name:   "unselected language above threshold is filtered",
			result: classification(score("de", 90), score("en", 10)),
			want:   true,
		},
		{
			name:   "unknown kept when selectUnknown",
			mutate: func(s *Settings) { s.SetSelectUnknown(true) },
			result: classification(score("en", 20), score("de", 20)),
			want:   false,
		},
		{
			name:   "und sentinel kept when selectUnknown",
			mutate: func(s *Settings) { s.SetSelectUnknown(true) },
			result: classification(score(classify.UnknownLanguageCode, 95)),
			want:   false,
		},
		{
			name:   "und sentinel filtered without selectUnknown",
			result: classification(score(classify.UnknownLanguageCode, 95)),
			want:   true,
		},
		{
			name:   "block-mode inverts the verdict",
			mutate: func(s *Settings) { s.SetBlockListMode(true) },
			result: classification(score("en", 95)),
			want:   true,
		},
		{
			name:   "block-mode shows unmatched languages",
			mutate: func(s *Settings) { s.SetBlockListMode(true) },
			result: classification(score("de", 95)),
			want:   false,
		},
		{
			name:   "disabled language filter never hides",
			mutate: func(s *Settings) { s.SetLanguageFilterEnabled(false) },
			result: classification(score("de", 95)),
			want:   false,
		},
		{
			name: "empty selection with selectUnknown=false filters everything in allow-mode",
			mutate: func(s *Settings) {
				if err := s.SetLanguageSelected("en", false); err != nil {
					t.Fatal(err)
				}
			},
			result: classification(score("en", 95)),
			want:   true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := allowModeSettings(t)
			if tc.mutate != nil {
				tc.mutate(s)
			}
			if got := s.ShouldFilterByLanguage(tc.result); got != tc.want {
				t.Errorf("ShouldFilterByLanguage() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestShouldFilterByWordSubstring(t *testing.T) {
	s := newTestSettings(t)
	s.SetBlockedWords([]string{"Spoiler", "giveaway"})

	tests := []struct {
		text string
		want bool
	}{
		{"no spoilers here, honest", true}, // substring, case-insensitive
		{"GIVEAWAY ends tonight", true},
		{"perfectly fine text", false},
		{"", false},
	}
	for _, tc := range tests {
		if got := s.ShouldFilterByWord(tc.text); got != tc.want {
			t.Errorf("ShouldFilterByWord(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}

	s.SetBlockedWords(nil)
	if s.ShouldFilterByWord("anything") {
		t.Error("empty blocked-word list must never hide")
	}

	s.SetBlockedWords([]string{"x"}).SetWordFilterEnabled(false)
	if s.ShouldFilterByWord("x marks the spot") {
		t.Error("disabled word filter must never hide")
	}
}

func TestShouldFilterByWordRegex(t *testing.T) {
	s := newTestSettings(t)
	s.SetBlockedWords([]string{`gi+veaway`, `\bwin\b`}).SetRegexEnabled(true)

	if !s.ShouldFilterByWord("giiiveaway time") {
		t.Error("pattern should match")
	}
	if !s.ShouldFilterByWord("WIN big") {
		t.Error("patterns are case-insensitive")
	}
	if s.ShouldFilterByWord("winter is coming") {
		t.Error(`\bwin\b must not match inside "winter"`)
	}

	// Toggling regex off reverts to literal substring semantics.
	s.SetRegexEnabled(false)
	if s.ShouldFilterByWord("giiiveaway time") {
		t.Error("literal mode must not interpret patterns")
	}
}

func TestInvalidRegexSkipped(t *testing.T) {
	s := newTestSettings(t)
	s.SetBlockedWords([]string{`([invalid`, `valid`}).SetRegexEnabled(true)

	if !s.ShouldFilterByWord("still valid input") {
		t.Error("remaining patterns must apply when one fails to compile")
	}
	if s.ShouldFilterByWord("unrelated") {
		t.Error("invalid pattern must not match anything")
	}
}

func TestPrimarySubtag(t *testing.T) {
	tests := []struct{ in, want string }{
		{"en", "en"},
		{"en-US", "en"},
		{"PT-br", "pt"},
		{"und", "und"},
	}
	for _, tc := range tests {
		if got := primarySubtag(tc.in); got != tc.want {
			t.Errorf("primarySubtag(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
