// cruise is an autonomous software-development orchestrator: it plans,
// executes, and reviews code changes by coordinating sandboxed coding
// agents through adversarial multi-model review loops.
package main

func main() {
	Execute()
}
