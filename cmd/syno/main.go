package main

import "github.com/felixgeelhaar/syno/cmd/syno/cli"

func main() {
	cli.Execute()
}
