package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
)

// NewCalculatorTool returns the basic arithmetic tool. Results are rounded
// to 2 decimal places.
func NewCalculatorTool() Tool {
	params, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"first_num": map[string]any{
				"type":        "number",
				"description": "The first operand",
			},
			"second_num": map[string]any{
				"type":        "number",
				"description": "The second operand",
			},
			"operation": map[string]any{
				"type":        "string",
				"enum":        []string{"add", "subtract", "multiply", "divide"},
				"description": "The arithmetic operation to perform",
			},
		},
		"required": []string{"first_num", "second_num", "operation"},
	})

	return Tool{
		Name:        "calculator",
		Description: "Performs basic arithmetic on two numbers.",
		Parameters:  params,
		Handler:     calculate,
	}
}

func calculate(_ context.Context, args Args) map[string]any {
	first := args.Float("first_num")
	second := args.Float("second_num")
	operation := args.String("operation")

	var result float64
	switch operation {
	case "add":
		result = first + second
	case "subtract":
		result = first - second
	case "multiply":
		result = first * second
	case "divide":
		if second == 0 {
			return map[string]any{"error": "Division by zero is not allowed."}
		}
		result = first / second
	default:
		return map[string]any{"error": fmt.Sprintf("Unsupported operation '%s'.", operation)}
	}

	return map[string]any{
		"first_num":  first,
		"second_num": second,
		"operation":  operation,
		"result":     math.Round(result*100) / 100,
	}
}
