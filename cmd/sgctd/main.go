package main

import "github.com/sgct-project/combi/cmd/sgctd/cmd"

func main() {
	cmd.Execute()
}
