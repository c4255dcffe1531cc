package store

import "errors"

var (
	ErrTableExists      = errors.New("store: table already exists")
	ErrTableNotFound    = errors.New("store: table not found")
	ErrKeyTypeMismatch  = errors.New("store: key type does not match table's keyType")
	ErrKeyExists        = errors.New("store: insert failed, a live row already exists for this key")
	ErrNoLiveRow        = errors.New("store: no live row exists for this key")
)
