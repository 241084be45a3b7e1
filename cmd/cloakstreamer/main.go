package main

import (
	"runtime"

	"github.com/bryanchriswhite/CloakStreamer/cmd/cloakstreamer/commands"
)

// The preview window must be driven from the main OS thread
func init() {
	runtime.LockOSThread()
}

func main() {
	commands.Execute()
}
