// Command facectl administers the classcam face database offline.
package main

func main() {
	Execute()
}
