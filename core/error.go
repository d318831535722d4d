// Copyright 2014 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package core

import "errors"

// Admission rejections. All of these are expected, non-fatal outcomes that
// are returned to the submitter synchronously; none of them mutate the pool.
var (
	// ErrAlreadyKnown is returned if the transaction is already contained
	// within the pool.
	ErrAlreadyKnown = errors.New("already known")

	// ErrUnderpriced is returned if a transaction's fee cap does not cover the
	// current base fee plus the configured minimum tip.
	ErrUnderpriced = errors.New("transaction underpriced")

	// ErrReplaceUnderpriced is returned if a transaction is attempted to be
	// replaced with a different one without the required price bump.
	ErrReplaceUnderpriced = errors.New("replacement transaction underpriced")

	// ErrPoolFull is returned if the pool is at capacity and the candidate
	// does not outbid the cheapest transaction currently pooled.
	ErrPoolFull = errors.New("transaction pool is full")

	// ErrOversizedData is returned if the input data of a transaction is
	// greater than some meaningful limit a user might use. This is not a
	// consensus error making the transaction invalid, rather a DOS protection.
	ErrOversizedData = errors.New("oversized data")

	// ErrGasLimit is returned if a transaction's requested gas limit exceeds
	// the maximum allowance of the pool.
	ErrGasLimit = errors.New("exceeds transaction gas allowance")

	// ErrNegativeValue is a sanity error to ensure no one is able to specify a
	// transaction with a negative value.
	ErrNegativeValue = errors.New("negative value")

	// ErrTipAboveFeeCap is a sanity error to ensure no one is able to specify
	// a transaction with a tip higher than the total fee cap.
	ErrTipAboveFeeCap = errors.New("max priority fee per gas higher than max fee per gas")

	// ErrNonceTooLow is returned if the nonce of a transaction is lower than
	// the one present in the committed account state.
	ErrNonceTooLow = errors.New("nonce too low")

	// ErrNonceGapped is returned in strict-ordering mode if the nonce of a
	// transaction is ahead of the next executable nonce for its sender.
	ErrNonceGapped = errors.New("nonce gap not permitted")

	// ErrInsufficientFunds is returned if the total cost of executing a
	// transaction is higher than the balance of the user's account.
	ErrInsufficientFunds = errors.New("insufficient funds for gas * price + value")

	// ErrSenderLimit is returned if a sender occupies its configured maximum
	// number of pool slots already.
	ErrSenderLimit = errors.New("sender transaction limit reached")

	// ErrSpamProtection is returned if a sender exceeds the configured number
	// of admissions within the rolling spam window.
	ErrSpamProtection = errors.New("sender admission rate exceeded")

	// ErrValidationFailed is returned when the external validator rejects a
	// transaction for a reason the pool does not classify further.
	ErrValidationFailed = errors.New("transaction validation failed")

	// ErrStateUnavailable is returned when the account-state reader cannot
	// answer; the candidate is refused without caching any verdict so a
	// resubmission gets a fresh decision.
	ErrStateUnavailable = errors.New("account state unavailable")

	// ErrDelayed is returned by a Validator that cannot produce a verdict
	// right now. The pool maps it to ErrStateUnavailable for the submitter.
	ErrDelayed = errors.New("validation delayed")
)
