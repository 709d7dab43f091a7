package main

import "github.com/nextlevelbuilder/snapdiff/cmd"

func main() {
	cmd.Execute()
}
