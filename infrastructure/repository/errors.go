package repository

import "errors"

var ErrNotFound = errors.New("repository: relative path not found")
