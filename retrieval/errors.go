// Copyright 2025 Gurubase, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package retrieval

import (
	"errors"
	"fmt"
)

// JudgmentCountError reports a trust-filter response whose judgment count
// does not match the number of submitted candidates. Score-to-context
// alignment is positional, so a silent mismatch would attach scores to the
// wrong contexts; this is the one condition the core propagates to the
// caller instead of degrading.
type JudgmentCountError struct {
	Expected int
	Got      int
}

func (e *JudgmentCountError) Error() string {
	return fmt.Sprintf("relevance judgment count mismatch: submitted %d contexts, got %d judgments", e.Expected, e.Got)
}

// IsJudgmentCountMismatch reports whether err is a JudgmentCountError.
func IsJudgmentCountMismatch(err error) bool {
	var jc *JudgmentCountError
	return errors.As(err, &jc)
}
