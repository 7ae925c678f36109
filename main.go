package main

import "github.com/vietddude/rpcgate/internal/cli"

func main() {
	cli.Execute()
}
