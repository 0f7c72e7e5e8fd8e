// Package main is the devrank command line: it crawls the GitHub
// collaboration graph from a seed login into a sqlite graph store and
// derives user rankings from it.
//
// Usage:
//
//	devrank crawl <login> <hops>
//	devrank derive
//	devrank version
package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}
