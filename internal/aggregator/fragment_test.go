// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
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

package aggregator

import "testing"

// passesSecondaryMagicRecheck can only fail for a Fragment whose Header was
// populated some way other than NewFragment, since NewFragment already runs
// the validator's magic check before a Fragment is ever constructed. This
// pins both the ordinary pass case and the corrupted-header case a shard
// worker would see if the header bytes were tampered with between release
// and rebuild.
func TestPassesSecondaryMagicRecheck(t *testing.T) {
	ok := testFragment(100, 1, 1, 8)
	if !ok.passesSecondaryMagicRecheck() {
		t.Fatalf("expected recheck to pass for a freshly built fragment")
	}

	corrupted := testFragment(100, 1, 1, 8)
	corrupted.Header[28] = 0x00
	corrupted.Header[29] = 0x00
	corrupted.Header[30] = 0x00
	corrupted.Header[31] = 0x00
	if corrupted.passesSecondaryMagicRecheck() {
		t.Fatalf("expected recheck to fail for a corrupted header")
	}
}
