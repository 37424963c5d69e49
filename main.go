package main

import "github.com/open-ch/alertpacket/cmd"

func main() {
	cmd.Execute()
}
