package main

import "github.com/aqryuz/authcore/cmd/authctl/cmd"

func main() {
	cmd.Execute()
}
