// Command creatorpay runs the creator marketplace billing service.
//
//	creatorpay migrate        apply database migrations
//	creatorpay serve          run the HTTP API and the billing sweeper
//	creatorpay sweep          run one sweep and exit
//	creatorpay split 1000     print the revenue split of a charge
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
