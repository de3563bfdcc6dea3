package logger

import (
	"log"
	"os"
	"strings"
	"sync"
)

func init() {
	SetDebug(os.Getenv("DEBUG"))
}

var (
	lock         sync.RWMutex
	positiveList map[string]bool
	printAll     bool
)

// SetDebug decides which packages will be logged by Printf and the colour
// functions. list is a comma separated list of package tags, "*" enables
// everything.
func SetDebug(list string) {
	lock.Lock()
	defer lock.Unlock()

	positiveList = make(map[string]bool)
	printAll = false

	for _, positive := range strings.Split(list, ",") {
		positive = strings.TrimSpace(positive)

		switch positive {
		case "":
		case "*":
			printAll = true
		default:
			positiveList[positive] = true
		}
	}
}

// Enabled reports whether debug output for pkg is turned on.
func Enabled(pkg string) bool {
	lock.RLock()
	defer lock.RUnlock()

	return printAll || positiveList[pkg]
}

func Printf(pkg string, format string, args ...interface{}) {
	if Enabled(pkg) {
		log.Printf("\033[35m"+pkg+"\033[0m: "+format+"\n", args...)
	}
}

func Red(pkg string, format string, args ...interface{}) {
	Printf(pkg, "\033[31m"+format+"\033[0m", args...)
}

func Yellow(pkg string, format string, args ...interface{}) {
	Printf(pkg, "\033[33m"+format+"\033[0m", args...)
}

func Green(pkg string, format string, args ...interface{}) {
	Printf(pkg, "\033[32m"+format+"\033[0m", args...)
}

// Error will always be logged regardless of debug settings.
func Error(pkg string, format string, args ...interface{}) {
	log.Printf("\033[31m"+pkg+"\033[0m: "+format+"\n", args...)
}
