// Package engine implements the rules that change entities (chat replies,
// autonomous actions and periodic drift), the read-only query side, and
// the scheduler that drives drift.
package engine

import "errors"

// ErrConfiguration indicates the reply or action tables cannot serve a
// request, such as an entity whose symbol has no replies configured.
var ErrConfiguration = errors.New("configuration error")
