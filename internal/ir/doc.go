// Package ir provides the shared vocabulary of the capped sale: addresses,
// 256-bit amounts, capabilities, permission grants, events, and the
// canonical JSON form used for hashing and persistence.
//
// This package contains value types only. All other internal packages
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types anywhere - amounts are *big.Int bounded by MaxUint256
//   - Amounts cross every serialization boundary as decimal strings
//   - All JSON tags use snake_case
//   - Block heights and sequence numbers only, never wall-clock timestamps
package ir
