package gcsafe

import (
	"go.uber.org/zap"

	"github.com/wippyai/gcroot/trace"
)

// NoGC is a token proving that no collection happens while it is held.
// Several tokens may be held at once.
type NoGC struct {
	cx       *Context
	released bool
}

// Release returns the token. Releasing twice terminates the process.
func (n *NoGC) Release() {
	if n.released {
		n.cx.log.Fatal("no-gc token released twice")
		return
	}
	n.released = true
	n.cx.noGC--
}

// Get returns the payload of the referenced cell.
func (n *NoGC) Get(ref trace.Ref) (any, bool) {
	n.check()
	return n.cx.raw.Get(ref)
}

// Kind returns the kind of the referenced cell.
func (n *NoGC) Kind(ref trace.Ref) trace.Kind {
	n.check()
	return n.cx.raw.Kind(ref)
}

// Valid reports whether ref points at a live cell.
func (n *NoGC) Valid(ref trace.Ref) bool {
	n.check()
	return n.cx.raw.Valid(ref)
}

// Private returns the embedder data of the owning context.
func (n *NoGC) Private() any {
	n.check()
	return n.cx.private
}

func (n *NoGC) check() {
	if n.released {
		n.cx.log.Fatal("no-gc token used after release", zap.Int("tokens", n.cx.noGC))
	}
}
