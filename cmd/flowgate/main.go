// Package main provides the flowgate CLI for running sandboxed workflow scripts.
package main

func main() {
	Execute()
}
