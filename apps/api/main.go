package main

import "flag"

func main() {
	withDig := flag.Bool("dig", false, "wire dependencies with the dig container")
	digGraph := flag.Bool("dig-graph", false, "print the dig dependency graph in DOT format and exit")
	flag.Parse()

	if *withDig || *digGraph {
		startWithDig(*digGraph)
		return
	}
	startManual()
}
