// The nexum command is the operator CLI for a Nexum server: registering
// workflows, starting and inspecting executions, resolving approval
// gates, and running a local development server.
package main

import "github.com/kuro6061/nexum/cmd/nexum/cmd"

func main() {
	cmd.Execute()
}
