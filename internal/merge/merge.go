// Copyright 2026 VQ Technologies Ltd
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

// Package merge concatenates PDF documents. This is the entire unit of work
// behind a job; everything else in the repository exists to lease it.
package merge

import (
	"errors"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Merge concatenates the inputs, in order, into a single document at output.
func Merge(inputs []string, output string) error {
	if len(inputs) == 0 {
		return errors.New("nothing to merge")
	}

	if err := api.MergeCreateFile(inputs, output, false, nil); err != nil {
		return fmt.Errorf("merging %d documents: %w", len(inputs), err)
	}
	return nil
}
