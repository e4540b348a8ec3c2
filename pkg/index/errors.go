package index

import "github.com/cockroachdb/errors"

var (
	ErrNotFound           = errors.New("entry not indexed")
	ErrUnsupportedFilter  = errors.New("filter not supported by index")
	ErrConfiguration      = errors.New("invalid index configuration")
	ErrCorrupted          = errors.New("index corrupted")
	ErrNoSuchElement      = errors.New("no more results")
	ErrUnknownIndexType   = errors.New("unknown index type")
	ErrAlreadyInitialized = errors.New("index already initialized")
	ErrInvalidEnvelope    = errors.New("record envelope is not finite")
)
