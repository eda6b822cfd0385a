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

package signature

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"

	"github.com/blinklabs-io/gouroboros/cbor"
	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
)

// DevPublicKeySize is the size of a DevScheme verification key: the Ed25519
// public key followed by its Blake2b-256 digest. The digest makes dev keys
// long-form identifiers, like the keys of the production scheme.
const DevPublicKeySize = ed25519.PublicKeySize + 32

var ErrInvalidKey = errors.New("invalid key")

// DevScheme is an Ed25519-based Scheme for development and tests. Its
// aggregate is the CBOR list of the individual signatures, and verifying it
// re-verifies every signature.
type DevScheme struct{}

func NewDevScheme() *DevScheme {
	return &DevScheme{}
}

// GenerateKey returns a DevScheme verification key and private key
func (s *DevScheme) GenerateKey(rand io.Reader) ([]byte, []byte, error) {
	pub, priv, err := ed25519.GenerateKey(rand)
	if err != nil {
		return nil, nil, err
	}
	return devPublicKey(pub), priv, nil
}

func (s *DevScheme) Sign(message []byte, privateKey []byte) ([]byte, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf(
			"%w: private key must be %d bytes, got %d",
			ErrInvalidKey,
			ed25519.PrivateKeySize,
			len(privateKey),
		)
	}
	return ed25519.Sign(ed25519.PrivateKey(privateKey), message), nil
}

func (s *DevScheme) Verify(
	message []byte,
	signature []byte,
	publicKey []byte,
) bool {
	pub, ok := edPublicKey(publicKey)
	if !ok || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, message, signature)
}

func (s *DevScheme) Aggregate(
	_ context.Context,
	messages [][]byte,
	signatures [][]byte,
	publicKeys [][]byte,
) ([]byte, error) {
	if len(messages) != len(signatures) ||
		len(messages) != len(publicKeys) {
		return nil, ErrLengthMismatch
	}
	if len(messages) == 0 {
		return nil, errors.New("nothing to aggregate")
	}
	agg, err := cbor.Encode(signatures)
	if err != nil {
		return nil, fmt.Errorf("encode aggregate: %w", err)
	}
	return agg, nil
}

func (s *DevScheme) VerifyAggregate(
	_ context.Context,
	aggregate []byte,
	messages [][]byte,
	publicKeys [][]byte,
) (bool, error) {
	if len(messages) != len(publicKeys) {
		return false, ErrLengthMismatch
	}
	var signatures [][]byte
	if _, err := cbor.Decode(aggregate, &signatures); err != nil {
		return false, fmt.Errorf("decode aggregate: %w", err)
	}
	if len(signatures) != len(messages) {
		return false, nil
	}
	for i := range messages {
		if !s.Verify(messages[i], signatures[i], publicKeys[i]) {
			return false, nil
		}
	}
	return true, nil
}

func devPublicKey(pub ed25519.PublicKey) []byte {
	digest := lcommon.Blake2b256Hash(pub)
	ret := make([]byte, 0, DevPublicKeySize)
	ret = append(ret, pub...)
	return append(ret, digest.Bytes()...)
}

func edPublicKey(key []byte) (ed25519.PublicKey, bool) {
	if len(key) != DevPublicKeySize {
		return nil, false
	}
	pub := ed25519.PublicKey(key[:ed25519.PublicKeySize])
	digest := lcommon.Blake2b256Hash(pub)
	if !bytes.Equal(digest.Bytes(), key[ed25519.PublicKeySize:]) {
		return nil, false
	}
	return pub, true
}
