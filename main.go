package main

import "nfpanel/nfp/cmd"

func main() {
	cmd.Run()
}
