package main

import "github.com/edgeflare/cellbridge/cmd/cellbridge"

func main() {
	cellbridge.Main()
}
