package main

import "gh-projects-migrate/cmd"

func main() {
	cmd.Execute()
}
