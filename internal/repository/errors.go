package repository

import "errors"

// ErrNotFound is returned when a requested record is not found in the
// repository. This abstracts away the underlying storage implementation
// from the service layer.
var ErrNotFound = errors.New("record not found")

// ErrLetterUsed is returned when a letter was already played this game.
// Letters are never reused within a session.
var ErrLetterUsed = errors.New("letter already used")
