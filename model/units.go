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

package model

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// DefaultDisplayDecimals is the number of decimal places between the display
// unit and the ledger base unit (1 display unit = 10^8 base units)
const DefaultDisplayDecimals int32 = 8

var ErrInvalidAmount = errors.New("invalid amount")

// ToBaseUnits converts a display-unit amount string (e.g. "1.5") into ledger
// base units. Fractions finer than one base unit and negative values are rejected.
func ToBaseUnits(display string, decimals int32) (uint64, error) {
	d, err := decimal.NewFromString(display)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidAmount, err)
	}
	if d.Sign() < 0 {
		return 0, fmt.Errorf("%w: negative amount %s", ErrInvalidAmount, display)
	}
	base := d.Shift(decimals)
	if !base.IsInteger() {
		return 0, fmt.Errorf(
			"%w: %s has more than %d decimal places",
			ErrInvalidAmount,
			display,
			decimals,
		)
	}
	tmp := base.BigInt()
	if !tmp.IsUint64() {
		return 0, fmt.Errorf("%w: %s out of range", ErrInvalidAmount, display)
	}
	return tmp.Uint64(), nil
}

// FromBaseUnits formats a base-unit amount in display units
func FromBaseUnits(base uint64, decimals int32) string {
	return decimal.NewFromBigInt(
		new(big.Int).SetUint64(base),
		-decimals,
	).String()
}
