package cache

import "errors"

// ErrConfiguration is returned when a cache cannot be built from its Config.
var ErrConfiguration = errors.New("cache configuration")
