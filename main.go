package main

import "github.com/omri0111-web/facepace-public/cmd"

func main() {
	cmd.Execute()
}
