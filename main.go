package main

import "github.com/BioHazard786/vanish/cmd"

func main() {
	cmd.Execute()
}
