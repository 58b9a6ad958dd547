package main

import "github.com/mboxport/mboxport/cmd"

func main() {
	cmd.Execute()
}
