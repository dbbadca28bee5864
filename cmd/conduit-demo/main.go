package main

import "github.com/Togather-Foundation/conduit/cmd/conduit-demo/cmd"

func main() {
	cmd.Execute()
}
