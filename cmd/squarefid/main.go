package main

import "github.com/MeKo-Tech/squarefid/cmd/squarefid/cmd"

func main() {
	cmd.Execute()
}
