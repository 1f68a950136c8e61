package assets

import "errors"

var (
	ErrDanglingReference = errors.New("asset refers to a missing asset")
	ErrInvalidTileMap    = errors.New("tile map dimensions do not match its tiles")
	ErrUnknownFormat     = errors.New("unknown catalog file format")
	ErrUnknownFile       = errors.New("file does not belong to the catalog")
)
