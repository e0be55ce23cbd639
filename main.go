package main

import "github.com/mselser95/dex-router/cmd"

func main() {
	cmd.Execute()
}
