// Copyright 2026 Blink Labs Software
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

// Package signature defines the signing capability the settlement pipeline
// consumes. Messages, signatures and keys are opaque byte strings.
package signature

import (
	"context"
	"errors"
)

var ErrLengthMismatch = errors.New(
	"messages, signatures and keys must have the same length",
)

// Scheme is an aggregatable signature scheme
type Scheme interface {
	Sign(message []byte, privateKey []byte) ([]byte, error)
	Verify(message []byte, signature []byte, publicKey []byte) bool
	// Aggregate combines per-message signatures into a single proof
	Aggregate(
		ctx context.Context,
		messages [][]byte,
		signatures [][]byte,
		publicKeys [][]byte,
	) ([]byte, error)
	// VerifyAggregate checks an aggregate proof against the signed messages
	// and their signers' keys, in order
	VerifyAggregate(
		ctx context.Context,
		aggregate []byte,
		messages [][]byte,
		publicKeys [][]byte,
	) (bool, error)
}
