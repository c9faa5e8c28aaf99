package main

import "github.com/schoolms/portal-client/cmd/schoolctl/cmd"

func main() {
	cmd.Execute()
}
