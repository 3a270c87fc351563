package errors_test

import (
	"fmt"

	"github.com/agentstation/retailchain/pkg/errors"
)

// Example demonstrates basic error creation and checking.
func Example() {
	err := errors.NewProductNotFound(5)

	if errors.IsNotFound(err) {
		fmt.Println(err.Error())
	}

	// Output: Product not found with id 5
}

// Example_validationError shows how field messages are collected.
func Example_validationError() {
	verr := &errors.ValidationError{}
	verr.Add("sku", "SKU is required")

	if verr.HasErrors() {
		fmt.Println(verr.Fields["sku"])
	}

	// Output: SKU is required
}
