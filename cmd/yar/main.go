// yar - store-mediated chat coordination for local agent sessions
package main

func main() {
	Execute()
}
