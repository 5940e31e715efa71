package main

import "gig-copilot/cmd"

func main() {
	cmd.Execute()
}
