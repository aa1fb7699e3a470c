package main

import "github.com/sheguard/sheguard/cmd"

func main() {
	cmd.Execute()
}
