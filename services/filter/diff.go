// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package filter

// ShouldRefreshFilter reports whether switching from old to s requires
// re-deciding the visibility of already-classified items. It runs on
// every settings save, so it is a cheap structural diff rather than a
// re-classification.
//
// Fields that cannot change a verdict are ignored: the default-enabled
// flag and the listed-language menu ordering. Selected languages and
// blocked words compare as sets; order alone never triggers a refresh.
func (s *Settings) ShouldRefreshFilter(old *Settings) bool {
	if s == old {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	old.mu.RLock()
	defer old.mu.RUnlock()

	switch {
	case s.languageFilterEnabled != old.languageFilterEnabled,
		s.blockListMode != old.blockListMode,
		s.selectUnknown != old.selectUnknown,
		s.percentageThreshold != old.percentageThreshold,
		s.wordFilterEnabled != old.wordFilterEnabled,
		s.regexEnabled != old.regexEnabled,
		s.filterReplies != old.filterReplies:
		return true
	}
	if !equalCodeSets(s.selectedLanguages, old.selectedLanguages) {
		return true
	}
	return !equalWordSets(s.blockedWords, old.blockedWords)
}

func equalCodeSets(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for code := range a {
		if _, ok := b[code]; !ok {
			return false
		}
	}
	return true
}

// equalWordSets compares word lists as sets; duplicates collapse.
func equalWordSets(a, b []string) bool {
	setA := make(map[string]struct{}, len(a))
	for _, w := range a {
		setA[w] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, w := range b {
		setB[w] = struct{}{}
	}
	return equalCodeSets(setA, setB)
}
