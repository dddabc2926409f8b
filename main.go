package main

import "github.com/proxyforge/certgen/pkg/cmd"

func main() {
	cmd.Execute()
}
