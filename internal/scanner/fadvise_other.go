//go:build !linux

package scanner

import "os"

func adviseSequential(*os.File) {}
