// Package diagnose classifies abnormal program termination into a stable
// taxonomy of runtime error subcategories. The result is advisory and never
// changes a verdict.
package diagnose

import (
	"fmt"
	"strings"
	"syscall"

	"algojudge/internal/judge/model"
)

// Category is a runtime error subcategory.
type Category string

const (
	SegmentationFault  Category = "segmentation_fault"
	StackOverflow      Category = "stack_overflow"
	DivisionByZero     Category = "division_by_zero"
	IndexOutOfBounds   Category = "index_out_of_bounds"
	NullDereference    Category = "null_dereference"
	OutOfMemory        Category = "out_of_memory"
	UncaughtException  Category = "uncaught_exception"
	Aborted            Category = "aborted"
	NameError          Category = "name_error"
	TypeError          Category = "type_error"
	ValueError         Category = "value_error"
	KeyError           Category = "key_error"
	NumberFormat       Category = "number_format"
	InvalidInstruction Category = "invalid_instruction"
	Unknown            Category = "unknown"
)

// Diagnosis is the category plus a human-readable message.
type Diagnosis struct {
	Category Category
	Message  string
}

var titles = map[Category]string{
	SegmentationFault:  "Segmentation Fault",
	StackOverflow:      "Stack Overflow",
	DivisionByZero:     "Division by Zero",
	IndexOutOfBounds:   "Index Out of Bounds",
	NullDereference:    "Null Pointer Dereference",
	OutOfMemory:        "Out of Memory",
	UncaughtException:  "Uncaught Exception",
	Aborted:            "Program Aborted",
	NameError:          "Name Error",
	TypeError:          "Type Error",
	ValueError:         "Value Error",
	KeyError:           "Key Error",
	NumberFormat:       "Number Format Exception",
	InvalidInstruction: "Invalid Instruction",
}

var hints = map[Category]string{
	SegmentationFault:  "check array indices, pointer initialization and recursion depth",
	StackOverflow:      "check recursion base cases and call depth",
	DivisionByZero:     "check division and modulo operands",
	IndexOutOfBounds:   "check indices against the container length",
	NullDereference:    "check that objects are initialized before use",
	OutOfMemory:        "check data structure sizes and loop termination",
	NameError:          "check variable names and declarations",
	TypeError:          "check operand types and function arguments",
	ValueError:         "check input parsing and value ranges",
	KeyError:           "check that dictionary keys exist before access",
	NumberFormat:       "check that parsed input is numeric",
	InvalidInstruction: "the binary may be corrupt, try recompiling",
}

type pattern struct {
	needle   string
	category Category
}

// First match wins, so specific markers precede generic ones.
var pythonPatterns = []pattern{
	{"RecursionError", StackOverflow},
	{"MemoryError", OutOfMemory},
	{"ZeroDivisionError", DivisionByZero},
	{"IndexError", IndexOutOfBounds},
	{"KeyError", KeyError},
	{"NameError", NameError},
	{"TypeError", TypeError},
	{"ValueError", ValueError},
	{"AttributeError", NullDereference},
	{"Traceback (most recent call last)", UncaughtException},
}

var javaPatterns = []pattern{
	{"java.lang.OutOfMemoryError", OutOfMemory},
	{"java.lang.StackOverflowError", StackOverflow},
	{"ArrayIndexOutOfBoundsException", IndexOutOfBounds},
	{"StringIndexOutOfBoundsException", IndexOutOfBounds},
	{"IndexOutOfBoundsException", IndexOutOfBounds},
	{"NullPointerException", NullDereference},
	{"NumberFormatException", NumberFormat},
	{"java.lang.ArithmeticException: / by zero", DivisionByZero},
	{"Exception in thread", UncaughtException},
}

var cppPatterns = []pattern{
	{"std::bad_alloc", OutOfMemory},
	{"std::out_of_range", IndexOutOfBounds},
	{"terminate called after throwing", UncaughtException},
}

// Classify derives a diagnosis from how the process ended. Compiled programs
// report through signals; interpreted and JVM programs through stderr.
func Classify(lang string, exitCode, signal int, stderr string) Diagnosis {
	var category Category
	switch lang {
	case model.LanguagePython:
		category = matchStderr(pythonPatterns, stderr)
	case model.LanguageJava:
		category = matchStderr(javaPatterns, stderr)
	default:
		category = matchStderr(cppPatterns, stderr)
	}
	if category == Unknown {
		category = classifySignal(signal)
	}
	return Diagnosis{Category: category, Message: render(category, exitCode, signal, stderr)}
}

func matchStderr(patterns []pattern, stderr string) Category {
	if stderr == "" {
		return Unknown
	}
	for _, p := range patterns {
		if strings.Contains(stderr, p.needle) {
			return p.category
		}
	}
	return Unknown
}

func classifySignal(signal int) Category {
	switch syscall.Signal(signal) {
	case syscall.SIGSEGV, syscall.SIGBUS:
		return SegmentationFault
	case syscall.SIGFPE:
		return DivisionByZero
	case syscall.SIGABRT:
		return Aborted
	case syscall.SIGILL:
		return InvalidInstruction
	}
	return Unknown
}

func render(category Category, exitCode, signal int, stderr string) string {
	var b strings.Builder
	if title, ok := titles[category]; ok {
		b.WriteString("Runtime Error: ")
		b.WriteString(title)
	} else if signal > 0 {
		fmt.Fprintf(&b, "Runtime Error (Signal: %d)", signal)
	} else {
		fmt.Fprintf(&b, "Runtime Error (Exit Code: %d)", exitCode)
	}
	if hint, ok := hints[category]; ok {
		b.WriteString("; ")
		b.WriteString(hint)
	}
	if tail := lastLine(stderr); tail != "" {
		b.WriteString("\n")
		b.WriteString(tail)
	}
	return b.String()
}

// lastLine returns the final non-empty stderr line, which for tracebacks is
// the exception itself.
func lastLine(stderr string) string {
	lines := strings.Split(strings.TrimRight(stderr, "\r\n\t "), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
