package main

import "media-flow/cmd"

func main() {
	cmd.Execute()
}
