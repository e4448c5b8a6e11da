package main

import "github.com/welldanyogia/webrana-confchat/cmd/confchat/cmd"

func main() {
	cmd.Execute()
}
