// cmd/nursecall-bus/main.go
package main

func main() {
	Execute()
}
