package main

import "time"

// Flag structs decouple cobra from command logic for testing.

type SendFlags struct {
	Type    string
	Game    string
	Source  string
	APIUrl  string
	Timeout time.Duration
}

type StatusFlags struct {
	APIUrl  string
	Timeout time.Duration
}
