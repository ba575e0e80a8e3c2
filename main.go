package main

import "github.com/jayteealao/objlock/cmd"

func main() {
	cmd.Execute()
}
