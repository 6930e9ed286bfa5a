package main

import "errors"

// errRunFailed is returned when the run completed but is not ok. main
// exits 1 without printing it; the summary already said why.
var errRunFailed = errors.New("test run failed")

// errInterrupted is returned when the live reporter was left before the
// run ended.
var errInterrupted = errors.New("run interrupted")
