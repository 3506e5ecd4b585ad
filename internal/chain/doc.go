// Package chain is an in-process host for sale engines.
//
// It supplies everything an engine treats as external: block height,
// native balances, asset contracts whose mint is gated by a capability
// registry, contract deployment, and receive hooks that let tests run
// arbitrary code when value arrives at an account.
//
// Every state change made inside Execute is journaled. If the callback
// returns an error the journal is replayed backwards and buffered events
// are dropped, so a failed purchase leaves balances, supply and the event
// log exactly as they were. Committed transactions are delivered to
// subscribers as a Receipt.
//
// Chain is single-threaded, like the ledger it models. Callers must not
// use one Chain from several goroutines.
package chain
