package main

import "github.com/njyeung/avsync/cmd"

func main() {
	cmd.Execute()
}
