package pool

import "errors"

// ErrPoolDisposed is returned by Acquire/GetPrimary once Dispose has run.
var ErrPoolDisposed = errors.New("pool: disposed")
