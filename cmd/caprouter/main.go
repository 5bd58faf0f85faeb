// Command caprouter runs the capability router: a tool registry, a tenant
// policy gate, and a Contract-Net-style planner exposed over HTTP.
package main

import "caprouter/cmd/caprouter/cmd"

func main() {
	cmd.Execute()
}
