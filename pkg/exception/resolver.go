package exception

import "github.com/yanun0323/errors"

// Resolver errors
var (
	ErrResolveNotFound    = errors.New("resolver: not found")
	ErrResolveNilDelegate = errors.New("resolver: nil delegate")
	ErrResolveNilCache    = errors.New("resolver: nil cache")
	ErrResolveEmptyBundle = errors.New("resolver: empty identifier bundle")
)
