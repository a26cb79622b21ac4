// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package filter

import (
	"strings"

	"github.com/AleutianAI/threadlens/services/classify"
)

// ShouldFilterByLanguage decides whether a classified item is hidden by
// the language predicates. With language filtering disabled it always
// returns false. Otherwise allow-mode hides items that do NOT match the
// selection and block-mode hides items that DO.
func (s *Settings) ShouldFilterByLanguage(result *classify.Result) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.languageFilterEnabled {
		return false
	}
	matched := s.matchByLanguageLocked(result)
	if s.blockListMode {
		return matched
	}
	return !matched
}

// matchByLanguageLocked applies the percentage threshold and the
// selected-language set.
//
// Entries below the threshold are discarded. If nothing survives, the
// item is "unknown" and matches iff selectUnknown. Otherwise the item
// matches when any surviving entry's primary subtag is selected, or
// when an entry carries the undetermined code and selectUnknown is set.
// An empty selection with selectUnknown=false matches nothing.
func (s *Settings) matchByLanguageLocked(result *classify.Result) bool {
	var surviving []classify.LanguageScore
	for _, entry := range result.Languages {
		if entry.Percentage >= s.percentageThreshold {
			surviving = append(surviving, entry)
		}
	}
	if len(surviving) == 0 {
		return s.selectUnknown
	}
	for _, entry := range surviving {
		if _, ok := s.selectedLanguages[primarySubtag(entry.Code)]; ok {
			return true
		}
		if entry.Code == classify.UnknownLanguageCode && s.selectUnknown {
			return true
		}
	}
	return false
}

// primarySubtag extracts the 2-letter primary subtag from a BCP-47
// code: "en-US" -> "en". Codes without a region pass through.
func primarySubtag(code string) string {
	code = strings.ToLower(code)
	if i := strings.IndexByte(code, '-'); i >= 0 {
		return code[:i]
	}
	return code
}

// ShouldFilterByWord decides whether item text is hidden by the word
// predicates. In regex mode the text is matched against the compiled
// case-insensitive patterns; otherwise every blocked word is matched as
// a case-insensitive substring. An empty word list never hides.
func (s *Settings) ShouldFilterByWord(text string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.wordFilterEnabled {
		return false
	}
	if s.regexEnabled {
		for _, re := range s.compiledPatterns {
			if re.MatchString(text) {
				return true
			}
		}
		return false
	}
	if len(s.blockedWords) == 0 {
		return false
	}
	lowered := strings.ToLower(text)
	for _, w := range s.blockedWords {
		if strings.Contains(lowered, strings.ToLower(w)) {
			return true
		}
	}
	return false
}
