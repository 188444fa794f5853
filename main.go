package main

import "github.com/ridoystarlord/archiveprune/cmd"

func main() {
	cmd.Execute()
}
