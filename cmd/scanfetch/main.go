package main

import (
	"fmt"
	"os"
)

// Exit codes
const (
	ExitSuccess          = 0
	ExitGeneralError     = 1
	ExitInvalidArgs      = 2
	ExitServerNotAccess  = 3
	ExitProtocolError    = 4
	ExitStorageError     = 5
	ExitStateError       = 6
	ExitValidationFailed = 7
	ExitInterrupted      = 8
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return ExitInvalidArgs
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "fetch":
		return runFetch(cmdArgs)
	case "resume":
		return runResume(cmdArgs)
	case "systems":
		return runSystems(cmdArgs)
	case "validate":
		return runValidate(cmdArgs)
	case "fix":
		return runFix(cmdArgs)
	case "delete":
		return runDelete(cmdArgs)
	case "help", "-h", "--help":
		printUsage()
		return ExitSuccess
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		return ExitInvalidArgs
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: scanfetch <command> [options]

Commands:
  fetch     Download the calls of talkgroups in a time range from an rdio-scanner server
  resume    Continue the download job stored in an output directory
  systems   Save the server's systems and talkgroups to the output directory
  validate  Check that the output holds every call the job has downloaded
  fix       Download one plan item again without moving the job's progress
  delete    Remove the job state from an output directory

Run 'scanfetch <command> -h' for command-specific help.`)
}
