//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// notifySignals ends a run or graph server on SIGINT and SIGTERM.
func notifySignals(ch chan<- os.Signal) {
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
}
