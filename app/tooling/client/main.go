package main

import "github.com/oasislabs/oasis-chain/app/tooling/client/cmd"

func main() {
	cmd.Execute()
}
