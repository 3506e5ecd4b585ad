// Package sale implements the capped, block-height-windowed sale engine.
//
// Participants pay native value and receive value*rate units of a mintable
// asset. The engine enforces, in this order and on every purchase:
//
//  1. the sale window: startHeight <= height <= endHeight
//  2. the pause switch
//  3. the hard cap: raised + value <= cap
//
// Only after every check passes does it mint to the beneficiary, forward
// the value to the DAO treasury and increase the raised ledger. The mint
// and the transfer run against untrusted code, so the whole purchase is
// covered by a non-reentrant guard; a purchase arriving while another is
// in flight on the same engine fails with ErrReentrantCall.
//
// # Host contract
//
// The engine never rolls back external effects itself. The host executes
// each call inside a transaction and discards every effect (mint,
// transfer, emitted events) when the call returns an error. The engine's
// own part of that contract is ordering: it performs no external call
// before all validations pass and mutates its ledger last.
//
// A successful call can still sit inside a larger transaction that aborts
// later, for example a setter or a purchase on another engine run from a
// receive hook. Every mutation of the engine's binding, configuration and
// ledger therefore registers an undo step with Env.Journal, which the host
// replays when it discards the transaction.
//
// Configuration setters are gated by the host capability registry: the
// caller must hold ir.ConfigureCapability on the engine address. There is
// no owner field.
package sale
