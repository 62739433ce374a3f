package main

import "github.com/nvr-ai/go-mcdetect/cmd"

func main() {
	cmd.Execute()
}
