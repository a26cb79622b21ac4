// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package classify

// Fingerprint returns a deterministic, order-sensitive 32-bit hash of a
// content string, used as the cache key.
//
// This is the classic base-31 polynomial hash over runes with wrapping
// overflow. Two distinct strings that collide will share a cached
// classification; that is an accepted accuracy/memory trade-off, not a
// bug. Do not use this for anything security-sensitive.
func Fingerprint(text string) uint32 {
	var h int32
	for _, r := range text {
		h = h*31 + r
	}
	return uint32(h)
}
