package main

import "github.com/aolus-software/rbac-api/cmd"

func main() {
	cmd.Execute()
}
