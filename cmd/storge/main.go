package main

import "github.com/nfrund/storge/cmd/storge/cmd"

func main() {
	cmd.Execute()
}
