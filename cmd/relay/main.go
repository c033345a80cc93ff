package main

import "github.com/nfrund/liverelay/cmd/relay/cmd"

func main() {
	cmd.Execute()
}
