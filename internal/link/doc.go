// Package link implements the request/response pipeline the subscription
// link plugs into: an ordered chain of links, each receiving an Operation and
// a forward function, returning an Observable of FetchResults.
//
// # Observables
//
// An Observable is lazy: nothing happens until Subscribe is called. The
// producer function receives a guarded Observer and returns a teardown. The
// guard provides the contract every link relies on:
//   - Next, Error and Complete are serialized.
//   - After Error, Complete or Unsubscribe, further calls are dropped.
//   - The teardown runs exactly once, after Error, Complete or the first
//     Unsubscribe, whichever happens first. A producer that terminates
//     synchronously inside Subscribe still has its teardown run.
//
// # Chains
//
// From composes links left to right; the last link is expected to terminate
// the chain (for example httplink). Calling forward past the end of the
// chain yields ErrEndOfChain as a stream error.
//
//	chain := link.From(lighthouse.NewLink(client), httplink.New(endpoint))
//	sub := link.Execute(chain, op).Subscribe(link.ObserverFuncs{
//		OnNext: func(r *link.FetchResult) { ... },
//	})
//	defer sub.Unsubscribe()
package link
