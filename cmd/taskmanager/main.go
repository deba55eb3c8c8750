// Package main implements the taskmanager command, which runs the
// in-process task manager behind an HTTP control API and can replay a
// scripted demo of its scheduling and retry behaviour.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
