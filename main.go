package main

import "github.com/othello-os/go-othello/cmd"

func main() {
	cmd.Execute()
}
