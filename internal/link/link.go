package link

// NextLink returns the stream produced by the rest of the chain.
type NextLink func(op *Operation) *Observable

// Link is one step of a chain.
type Link interface {
	Request(op *Operation, forward NextLink) *Observable
}

// Func adapts a function to Link.
type Func func(op *Operation, forward NextLink) *Observable

func (f Func) Request(op *Operation, forward NextLink) *Observable { return f(op, forward) }

var passthrough = Func(func(op *Operation, forward NextLink) *Observable { return forward(op) })

// From composes links so that each forwards into the next.
func From(links ...Link) Link {
	switch len(links) {
	case 0:
		return passthrough
	case 1:
		return links[0]
	}
	head, rest := links[0], From(links[1:]...)
	return Func(func(op *Operation, forward NextLink) *Observable {
		return head.Request(op, func(op *Operation) *Observable {
			return rest.Request(op, forward)
		})
	})
}

func endOfChain(*Operation) *Observable { return Fail(ErrEndOfChain) }

// Execute runs op through l.
func Execute(l Link, op *Operation) *Observable {
	return l.Request(op, endOfChain)
}
