package tools

import (
	"context"
	"testing"
)

func TestCalculator(t *testing.T) {
	tests := []struct {
		name      string
		first     float64
		second    float64
		operation string
		want      float64
		wantError string
	}{
		{name: "add", first: 2, second: 3, operation: "add", want: 5},
		{name: "subtract", first: 10, second: 4.5, operation: "subtract", want: 5.5},
		{name: "multiply", first: 5, second: 2, operation: "multiply", want: 10},
		{name: "multiply decimal", first: 12.5, second: 4, operation: "multiply", want: 50},
		{name: "divide rounds to 2 decimals", first: 1, second: 3, operation: "divide", want: 0.33},
		{name: "divide by zero", first: 1, second: 0, operation: "divide", wantError: "Division by zero is not allowed."},
		{name: "unknown operation", first: 1, second: 2, operation: "modulo", wantError: "Unsupported operation 'modulo'."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := calculate(context.Background(), Args{
				"first_num":  tt.first,
				"second_num": tt.second,
				"operation":  tt.operation,
			})

			if tt.wantError != "" {
				got, ok := result["error"].(string)
				if !ok {
					t.Fatalf("expected error result, got %v", result)
				}
				if got != tt.wantError {
					t.Errorf("error: got %q, want %q", got, tt.wantError)
				}
				if _, hasResult := result["result"]; hasResult {
					t.Error("error results must not carry a numeric value")
				}
				return
			}

			got, ok := result["result"].(float64)
			if !ok {
				t.Fatalf("expected numeric result, got %v", result)
			}
			if got != tt.want {
				t.Errorf("result: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCalculatorViaRegistry(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(NewCalculatorTool())

	result := r.Invoke(context.Background(), "calculator",
		`{"first_num": 12.5, "second_num": 4, "operation": "multiply"}`)

	if result["result"] != 50.0 {
		t.Errorf("result: got %v, want 50", result["result"])
	}
	if result["operation"] != "multiply" {
		t.Errorf("operation echo: got %v", result["operation"])
	}
}
