package main

import "shard/cmd/shard/cmd"

func main() {
	cmd.Execute()
}
