// Command feedbackd runs the customer feedback pipeline: the webhook
// gateway and operator API, the classification workers and the reconciler.
//
// @title       Feedback Pipeline API
// @version     1.0
// @description Webhook gateway, manual entry and operator API for the customer feedback pipeline.
// @BasePath    /
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
