// Package exercise holds the catalog of exercises a learner can solve.
package exercise

import "coderush/internal/judge/sandbox/result"

// Example is a visible input/output pair shown with the exercise.
type Example struct {
	Input  string `json:"input" yaml:"input"`
	Output string `json:"output" yaml:"output"`
}

// Exercise is one task with its hidden test cases.
type Exercise struct {
	ID           int               `json:"id" yaml:"id"`
	Title        string            `json:"title" yaml:"title"`
	Description  string            `json:"description" yaml:"description"`
	Examples     []Example         `json:"examples" yaml:"examples"`
	Instructions []string          `json:"instructions" yaml:"instructions"`
	Tests        []result.TestCase `json:"-" yaml:"tests"`
	TimeLimitMs  int64             `json:"-" yaml:"timeLimitMs"`
}

// Default returns the built-in catalog used when none is configured.
func Default() []Exercise {
	return []Exercise{evenOdd()}
}

func evenOdd() Exercise {
	tests := []struct{ in, out string }{
		{"0", "Even"},
		{"2", "Even"},
		{"4", "Even"},
		{"10", "Even"},
		{"100", "Even"},
		{"1", "Odd"},
		{"3", "Odd"},
		{"7", "Odd"},
		{"9", "Odd"},
		{"101", "Odd"},
		{"-2", "Even"},
		{"-4", "Even"},
		{"-1", "Odd"},
		{"-3", "Odd"},
		{"123456", "Even"},
		{"123457", "Odd"},
	}
	ex := Exercise{
		ID:          1,
		Title:       "Check Even or Odd",
		Description: "Write a program that reads a number from standard input and checks if it is even or odd.",
		Examples: []Example{
			{Input: "4", Output: "Even"},
			{Input: "7", Output: "Odd"},
		},
		Instructions: []string{
			"Use the modulus operator (%) to check if the number is even or odd.",
			"If the number is divisible by 2, print 'Even'.",
			"Otherwise, print 'Odd'.",
		},
	}
	for _, tc := range tests {
		ex.Tests = append(ex.Tests, result.TestCase{Input: tc.in, ExpectedOutput: tc.out})
	}
	return ex
}
