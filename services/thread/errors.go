// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package thread

import "errors"

// ErrStaleRequest signals that a pipeline ticket no longer matches the
// item's current generation: a newer refresh has begun (or the item was
// destroyed) while this one was in flight. It is expected control flow,
// swallowed at the pipeline boundary and never logged.
var ErrStaleRequest = errors.New("refresh superseded by a newer generation")

// ErrAnchorNotFound reports that an item's anchor has drifted out of
// the externally-owned document. The pipeline for that item aborts;
// siblings are unaffected. Logged only in debug mode.
var ErrAnchorNotFound = errors.New("content anchor not found")
