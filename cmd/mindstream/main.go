package main

import "github.com/ent0n29/mindstream/cmd/mindstream/cli"

func main() {
	cli.Execute()
}
