package main

import "event-portal/cmd"

func main() {
	cmd.Execute()
}
