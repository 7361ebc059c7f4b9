package bib

import "errors"

// Sentinel kinds for bib matching errors.
var (
	ErrLookup = errors.New("start list lookup failed")
)
