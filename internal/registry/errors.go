package registry

import "errors"

var (
	ErrUnknownNetwork = errors.New("unknown network")
	ErrUnknownAsset   = errors.New("unknown asset")
)
