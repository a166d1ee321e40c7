package main

import "github.com/nextlevelbuilder/opencode-teams/cmd"

func main() {
	cmd.Execute()
}
