// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package filter

import (
	"errors"
	"slices"
	"testing"
)

func newTestSettings(t *testing.T) *Settings {
	t.Helper()
	t.Setenv("LC_ALL", "en_US.UTF-8")
	return NewSettings()
}

func TestNewSettingsDefaults(t *testing.T) {
	s := newTestSettings(t)

	if !s.EnabledByDefault() || !s.LanguageFilterEnabled() || !s.WordFilterEnabled() {
		t.Error("filtering should default to enabled")
	}
	if s.BlockListMode() || s.SelectUnknown() || s.RegexEnabled() || s.FilterReplies() {
		t.Error("mode flags should default to false")
	}
	if got := s.PercentageThreshold(); got != DefaultPercentageThreshold {
		t.Errorf("threshold = %v, want %v", got, DefaultPercentageThreshold)
	}
	if !slices.Equal(s.SelectedLanguages(), []string{"en"}) {
		t.Errorf("locale-derived selection = %v, want [en]", s.SelectedLanguages())
	}
	if !slices.Equal(s.ListedLanguages(), []string{"en"}) {
		t.Errorf("locale-derived menu = %v, want [en]", s.ListedLanguages())
	}
}

func TestHostLocaleFallback(t *testing.T) {
	t.Setenv("LC_ALL", "C")
	t.Setenv("LC_MESSAGES", "")
	t.Setenv("LANG", "")
	if got := hostLocaleLanguages(); !slices.Equal(got, []string{"en"}) {
		t.Errorf("hostLocaleLanguages() = %v, want [en]", got)
	}

	t.Setenv("LANG", "ja_JP.UTF-8")
	if got := hostLocaleLanguages(); !slices.Equal(got, []string{"ja"}) {
		t.Errorf("hostLocaleLanguages() = %v, want [ja]", got)
	}
}

func TestSelectUnlistedLanguageFails(t *testing.T) {
	s := newTestSettings(t)

	err := s.SetLanguageSelected("xx", true)
	var unlisted *UnlistedLanguageError
	if !errors.As(err, &unlisted) {
		t.Fatalf("selecting unlisted code = %v, want UnlistedLanguageError", err)
	}
	if unlisted.Code != "xx" {
		t.Errorf("error code = %q, want xx", unlisted.Code)
	}

	// Deselecting anything, listed or not, never fails.
	if err := s.SetLanguageSelected("xx", false); err != nil {
		t.Errorf("deselect = %v, want nil", err)
	}
}

func TestListedLanguageLifecycle(t *testing.T) {
	s := newTestSettings(t)
	s.AddListedLanguage("ja").AddListedLanguage("de").AddListedLanguage("ja")

	if !slices.Equal(s.ListedLanguages(), []string{"en", "ja", "de"}) {
		t.Fatalf("menu = %v, want [en ja de]", s.ListedLanguages())
	}

	if err := s.SetLanguageSelected("ja", true); err != nil {
		t.Fatalf("select listed code: %v", err)
	}
	if !slices.Equal(s.SelectedLanguages(), []string{"en", "ja"}) {
		t.Fatalf("selection = %v, want [en ja]", s.SelectedLanguages())
	}

	// Removing a listed code also deselects it (invariant: selected ⊆ listed).
	s.RemoveListedLanguage("ja")
	if slices.Contains(s.ListedLanguages(), "ja") {
		t.Error("ja should be removed from the menu")
	}
	if s.IsSelected("ja") {
		t.Error("removing a listed language must drop its selection")
	}
}

func TestThresholdClamped(t *testing.T) {
	s := newTestSettings(t)
	if got := s.SetPercentageThreshold(140).PercentageThreshold(); got != 100 {
		t.Errorf("threshold = %v, want clamp to 100", got)
	}
	if got := s.SetPercentageThreshold(-3).PercentageThreshold(); got != 0 {
		t.Errorf("threshold = %v, want clamp to 0", got)
	}
	if got := s.SetPercentageThreshold(37.5).PercentageThreshold(); got != 37.5 {
		t.Errorf("threshold = %v, non-integral values must be kept", got)
	}
}

func TestBlockedWordsNormalized(t *testing.T) {
	s := newTestSettings(t)
	s.SetBlockedWords([]string{"  spoiler\talert ", "", "   ", "crypto"})

	want := []string{"spoiler alert", "crypto"}
	if !slices.Equal(s.BlockedWords(), want) {
		t.Errorf("blocked words = %v, want %v", s.BlockedWords(), want)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	s := newTestSettings(t)
	s.AddListedLanguage("ja")
	s.SetBlockedWords([]string{"x"})

	clone := s.Clone()
	s.SetBlockedWords([]string{"y"})
	s.RemoveListedLanguage("ja")

	if !slices.Equal(clone.BlockedWords(), []string{"x"}) {
		t.Error("clone should not track later mutations")
	}
	if !slices.Contains(clone.ListedLanguages(), "ja") {
		t.Error("clone menu should be independent")
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"   ", ""},
		{"a  b", "a b"},
		{"\tline one\n line two ", "line one line two"},
	}
	for _, tc := range tests {
		if got := NormalizeWhitespace(tc.in); got != tc.want {
			t.Errorf("NormalizeWhitespace(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
