// Command diffevo runs DE-MC parameter estimation from the command line
// and serves sampling jobs over HTTP.
package main

import "os"

func main() {
	// Cobra has already printed the error.
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
