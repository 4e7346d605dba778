// Package main is the entry point for pocket.
package main

func main() {
	Execute()
}
