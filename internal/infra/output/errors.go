package output

import "errors"

// errNoStream means a transport command arrived with nothing loaded.
var errNoStream = errors.New("no stream loaded")
